package types

import (
	"fmt"

	"github.com/c360/bridgekit/errors"
)

// GeoLocation is an optional WGS84 position for geographic discovery filters.
type GeoLocation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BridgeCapability is the persisted identity of a sensing endpoint.
//
// Created on registration by the bridge owner; mutated only via heartbeat
// (LastSeen) or rating events (Reputation); never mutated by unrelated agents.
type BridgeCapability struct {
	BridgeID       string       `json:"bridge_id"`
	Owner          string       `json:"owner"`
	OwnerPublicKey []byte       `json:"owner_public_key,omitempty"` // ed25519
	Domain         Domain       `json:"domain"`
	FreqMinHz      float64      `json:"freq_min"`
	FreqMaxHz      float64      `json:"freq_max"`
	MaxSampleRate  uint32       `json:"max_sample_rate"`
	BitDepth       uint8        `json:"bit_depth"`
	Channels       uint8        `json:"channels"`
	Transports     []Transport  `json:"transports"`
	MixingOps      []Operation  `json:"mixing_ops"`
	Location       *GeoLocation `json:"location,omitempty"`
	CostPerKS      float64      `json:"cost_per_ks"` // cost per thousand samples
	Reputation     float64      `json:"reputation"`  // 0-1000
	LastSeen       int64        `json:"last_seen"`   // unix ns
	Endpoint       string       `json:"endpoint,omitempty"`
}

// Validate enforces the capability invariants: a positive sample rate and a
// reputation within [0, 1000].
func (c *BridgeCapability) Validate() error {
	if c.BridgeID == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "BridgeCapability", "Validate",
			"bridge id cannot be empty")
	}
	if c.Owner == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "BridgeCapability", "Validate",
			"owner cannot be empty")
	}
	if !c.Domain.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidData, "BridgeCapability", "Validate",
			fmt.Sprintf("unknown domain %q", c.Domain))
	}
	if c.MaxSampleRate == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "BridgeCapability", "Validate",
			"max_sample_rate must be > 0")
	}
	if c.Reputation < 0 || c.Reputation > 1000 {
		return errors.WrapInvalid(errors.ErrInvalidData, "BridgeCapability", "Validate",
			fmt.Sprintf("reputation %.1f outside [0,1000]", c.Reputation))
	}
	if c.FreqMaxHz != 0 && c.FreqMaxHz < c.FreqMinHz {
		return errors.WrapInvalid(errors.ErrInvalidData, "BridgeCapability", "Validate",
			"frequency range inverted")
	}
	return nil
}

// SupportsTransport reports whether the bridge advertises the transport.
func (c *BridgeCapability) SupportsTransport(t Transport) bool {
	for _, have := range c.Transports {
		if have == t {
			return true
		}
	}
	return false
}

// SupportsOperation reports whether the bridge advertises the mixing operation.
func (c *BridgeCapability) SupportsOperation(op Operation) bool {
	for _, have := range c.MixingOps {
		if have == op {
			return true
		}
	}
	return false
}

// DiscoveryQuery filters and ranks registered capabilities.
//
// Zero-valued fields are unconstrained. Domains is an OR-filter; Transports
// must all be supported.
type DiscoveryQuery struct {
	Domains       []Domain     `json:"domains,omitempty"`
	FreqMinHz     float64      `json:"freq_min,omitempty"`
	FreqMaxHz     float64      `json:"freq_max,omitempty"`
	MinSampleRate uint32       `json:"min_sample_rate,omitempty"`
	MinReputation float64      `json:"min_reputation,omitempty"`
	MaxCostPerKS  float64      `json:"max_cost,omitempty"`
	Transports    []Transport  `json:"transports,omitempty"`
	Center        *GeoLocation `json:"center,omitempty"`
	RadiusKm      float64      `json:"radius_km,omitempty"`
	Limit         int          `json:"limit,omitempty"`
}

// Candidate is a discovery result: a capability plus its ranking score.
type Candidate struct {
	Capability BridgeCapability `json:"capability"`
	Score      float64          `json:"score"`
}
