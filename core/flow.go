package core

import (
	"time"

	"github.com/bbc/tams-core/cmn"
)

// Rational is a {numerator, denominator} pair, used for segment_duration
// and frame_rate.
type Rational struct {
	Numerator   int64 `json:"numerator"`
	Denominator int64 `json:"denominator"`
}

// Format URNs, the closed set a Flow's Format discriminates on.
const (
	FormatVideo = "urn:x-nmos:format:video"
	FormatAudio = "urn:x-nmos:format:audio"
	FormatData  = "urn:x-nmos:format:data"
	FormatImage = "urn:x-nmos:format:image"
	FormatMulti = "urn:x-nmos:format:multi"
)

// Flow is a tagged sum over the five TAMS flow variants: one struct
// carrying the common header plus every variant-specific field as a
// pointer, discriminated by Format. This replaces a `hasattr`-style sniff
// with explicit accessor methods that return a BadRequest when a
// variant-only field is touched on the wrong variant, instead of silently
// reading a zero value.
type Flow struct {
	ID               string            `json:"id"`
	SourceID         string            `json:"source_id"`
	Format           string            `json:"format"`
	Codec            string            `json:"codec"`
	Label            string            `json:"label,omitempty"`
	Description      string            `json:"description,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
	ReadOnly         bool              `json:"read_only"`
	MetadataVersion  string            `json:"metadata_version,omitempty"`
	Generation       int64             `json:"generation"`
	SegmentDuration  *Rational         `json:"segment_duration,omitempty"`
	Container        string            `json:"container,omitempty"`
	MaxBitRate       *int64            `json:"max_bit_rate,omitempty"`
	AvgBitRate       *int64            `json:"avg_bit_rate,omitempty"`
	Created          time.Time         `json:"created"`
	MetadataUpdated  time.Time         `json:"metadata_updated"`
	SegmentsUpdated  time.Time         `json:"segments_updated"`

	// VideoFlow / ImageFlow
	FrameWidth  *int64    `json:"frame_width,omitempty"`
	FrameHeight *int64    `json:"frame_height,omitempty"`
	// VideoFlow only
	FrameRate  *Rational `json:"frame_rate,omitempty"`
	Colorspace string    `json:"colorspace,omitempty"`
	Interlace  *bool     `json:"interlace_mode,omitempty"`

	// AudioFlow
	SampleRate    *int64 `json:"sample_rate,omitempty"`
	BitsPerSample *int64 `json:"bits_per_sample,omitempty"`
	Channels      *int64 `json:"channels,omitempty"`

	// MultiFlow
	FlowCollection []string `json:"flow_collection,omitempty"`
	CollectedBy    []string `json:"collected_by,omitempty"`
}

// IsVideo, IsAudio, IsData, IsImage, IsMulti report the Flow's variant.
func (f *Flow) IsVideo() bool { return f.Format == FormatVideo }
func (f *Flow) IsAudio() bool { return f.Format == FormatAudio }
func (f *Flow) IsData() bool  { return f.Format == FormatData }
func (f *Flow) IsImage() bool { return f.Format == FormatImage }
func (f *Flow) IsMulti() bool { return f.Format == FormatMulti }

// RequireVariant returns a BadRequest when the Flow is not one of the given
// formats, used by sub-field accessors that only make sense for certain
// variants (e.g. FlowCollection on MultiFlow only).
func (f *Flow) RequireVariant(field string, formats ...string) *cmn.TError {
	for _, fmt := range formats {
		if f.Format == fmt {
			return nil
		}
	}
	return cmn.NewBadRequest(field + " is not valid for flow format " + f.Format)
}

// GetFlowCollection returns the MultiFlow-only flow_collection field.
func (f *Flow) GetFlowCollection() ([]string, *cmn.TError) {
	if err := f.RequireVariant("flow_collection", FormatMulti); err != nil {
		return nil, err
	}
	return f.FlowCollection, nil
}

// SetFlowCollection sets the MultiFlow-only flow_collection field.
func (f *Flow) SetFlowCollection(ids []string) *cmn.TError {
	if err := f.RequireVariant("flow_collection", FormatMulti); err != nil {
		return err
	}
	f.FlowCollection = ids
	return nil
}

// GetMaxBitRate returns max_bit_rate. Unlike flow_collection this field is
// common to every variant; the pointer is simply nil when unset.
func (f *Flow) GetMaxBitRate() *int64 { return f.MaxBitRate }

func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Tags = cloneMap(f.Tags)
	cp.FlowCollection = append([]string(nil), f.FlowCollection...)
	cp.CollectedBy = append([]string(nil), f.CollectedBy...)
	if f.SegmentDuration != nil {
		d := *f.SegmentDuration
		cp.SegmentDuration = &d
	}
	if f.FrameRate != nil {
		r := *f.FrameRate
		cp.FrameRate = &r
	}
	return &cp
}

// ValidateVariantShape checks that the required fields for f.Format are
// present, rejecting e.g. a VideoFlow with no frame_width.
func (f *Flow) ValidateVariantShape() *cmn.TError {
	switch f.Format {
	case FormatVideo:
		if f.FrameWidth == nil || *f.FrameWidth <= 0 {
			return cmn.NewValidationErr("frame_width", "required and must be > 0 for video flows")
		}
		if f.FrameHeight == nil || *f.FrameHeight <= 0 {
			return cmn.NewValidationErr("frame_height", "required and must be > 0 for video flows")
		}
		if f.FrameRate == nil || f.FrameRate.Denominator == 0 {
			return cmn.NewValidationErr("frame_rate", "required for video flows")
		}
	case FormatImage:
		if f.FrameWidth == nil || *f.FrameWidth <= 0 {
			return cmn.NewValidationErr("frame_width", "required and must be > 0 for image flows")
		}
		if f.FrameHeight == nil || *f.FrameHeight <= 0 {
			return cmn.NewValidationErr("frame_height", "required and must be > 0 for image flows")
		}
	case FormatAudio:
		if f.SampleRate == nil || *f.SampleRate <= 0 {
			return cmn.NewValidationErr("sample_rate", "required and must be > 0 for audio flows")
		}
		if f.BitsPerSample == nil || *f.BitsPerSample <= 0 {
			return cmn.NewValidationErr("bits_per_sample", "required and must be > 0 for audio flows")
		}
		if f.Channels == nil || *f.Channels <= 0 {
			return cmn.NewValidationErr("channels", "required and must be > 0 for audio flows")
		}
	case FormatData:
		// no variant-specific required fields
	case FormatMulti:
		// flow_collection may start empty and be populated via PUT
	default:
		return cmn.NewValidationErr("format", "unrecognized content-format URN")
	}
	return nil
}
