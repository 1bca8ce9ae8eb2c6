package stream

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/types"
)

// ResourceType is the second path segment of a bridge URI.
type ResourceType string

// Resource types addressable on a bridge.
const (
	ResourceStream   ResourceType = "stream"
	ResourceSnapshot ResourceType = "snapshot"
	ResourceMixed    ResourceType = "mixed"
	ResourceAnalysis ResourceType = "analysis"
)

func (r ResourceType) valid() bool {
	switch r {
	case ResourceStream, ResourceSnapshot, ResourceMixed, ResourceAnalysis:
		return true
	}
	return false
}

// StreamURI is a parsed bridge resource address:
//
//	bridge://<bridge-id>/<resource-type>/<stream-spec>?<params>
//
// Recognized query parameters: rate, format, channels, window. Unknown
// parameters are preserved in Params for forward compatibility.
type StreamURI struct {
	BridgeID   string
	Resource   ResourceType
	StreamSpec string

	Rate      uint32             // requested sample rate, 0 = bridge default
	Format    types.SampleFormat // requested sample format
	HasFormat bool               // whether format was requested explicitly
	Channels  uint8              // requested channel count, 0 = bridge default
	Window    uint32             // analysis window length in samples

	Params url.Values
}

// ParseURI parses and validates a bridge:// URI.
func ParseURI(raw string) (*StreamURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "stream", "ParseURI", "uri parse")
	}
	if u.Scheme != "bridge" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "stream", "ParseURI",
			"scheme must be bridge://")
	}
	if u.Host == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "stream", "ParseURI",
			"missing bridge id")
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "stream", "ParseURI",
			"path must be /<resource-type>/<stream-spec>")
	}

	resource := ResourceType(segments[0])
	if !resource.valid() {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "stream", "ParseURI",
			"unknown resource type "+segments[0])
	}

	su := &StreamURI{
		BridgeID:   u.Host,
		Resource:   resource,
		StreamSpec: segments[1],
		Params:     u.Query(),
	}

	if v := su.Params.Get("rate"); v != "" {
		rate, err := strconv.ParseUint(v, 10, 32)
		if err != nil || rate == 0 {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "stream", "ParseURI",
				"rate must be a positive integer")
		}
		su.Rate = uint32(rate)
	}
	if v := su.Params.Get("format"); v != "" {
		format, err := parseFormat(v)
		if err != nil {
			return nil, err
		}
		su.Format = format
		su.HasFormat = true
	}
	if v := su.Params.Get("channels"); v != "" {
		ch, err := strconv.ParseUint(v, 10, 8)
		if err != nil || ch == 0 {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "stream", "ParseURI",
				"channels must be 1-255")
		}
		su.Channels = uint8(ch)
	}
	if v := su.Params.Get("window"); v != "" {
		w, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "stream", "ParseURI",
				"window must be an integer")
		}
		su.Window = uint32(w)
	}

	return su, nil
}

// String reassembles the URI.
func (u *StreamURI) String() string {
	out := url.URL{
		Scheme:   "bridge",
		Host:     u.BridgeID,
		Path:     "/" + string(u.Resource) + "/" + u.StreamSpec,
		RawQuery: u.Params.Encode(),
	}
	return out.String()
}

func parseFormat(v string) (types.SampleFormat, error) {
	switch v {
	case "float32":
		return types.FormatFloat32, nil
	case "int16":
		return types.FormatInt16, nil
	case "uint8":
		return types.FormatUint8, nil
	default:
		return 0, errors.WrapInvalid(errors.ErrInvalidData, "stream", "ParseURI",
			"unknown sample format "+v)
	}
}
