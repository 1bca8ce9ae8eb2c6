// Package bridgekit provides the cross-domain sensor correlation subsystem:
// discovery of heterogeneous sensing endpoints ("bridges"), time-aligned live
// sample streams from them, and statistically meaningful correlation across
// those streams.
//
// # Architecture
//
// Data flows through five components, leaves first:
//
//	registry     - advertises and discovers bridge capabilities, scores candidates
//	stream       - negotiates, synchronizes and multiplexes live sample streams
//	correlation  - computes cross-domain relationships under four strategies
//	significance - five-test battery separating signal from coincidence
//	pattern      - replicated library of validated correlation patterns
//
// with a feedback edge from the pattern library back into correlation: known
// patterns short-circuit evaluation.
//
// # Layering
//
// Protocol concerns (NATS key-value storage, packet transports, the binary wire
// codec) live below the domain packages and are swappable. The subsystem consumes
// the agent identity ledger and agent messaging protocol purely as abstract
// capabilities: register/query a record, open a byte stream, send a message.
//
// Governance, credential issuance beyond discovery, ontology validation, sensor
// hardware drivers, and dashboards are external collaborators and MUST NOT leak
// into this module.
package bridgekit
