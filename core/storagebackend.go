package core

import "time"

// StorageBackend describes one object-storage endpoint available for
// segment payloads. The active set is seeded from process Config at
// startup (see cmn.Config); rows here are read-only to API clients and
// exist so segpipeline can decorate a Segment's get_urls with a
// human-readable label and so ObjectRepo can scope an Object to the
// backend it was actually written to.
type StorageBackend struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	Provider  string    `json:"provider"` // e.g. "s3"
	Bucket    string    `json:"bucket"`
	EndpointURL string  `json:"endpoint_url,omitempty"`
	UseSSL    bool      `json:"use_ssl"`
	ReadOnly  bool      `json:"read_only"`
	Created   time.Time `json:"created"`

	// StoreType, StoreProduct, Region, and AvailabilityZone describe the
	// backend for get_url decoration (see GetURL) and client-side storage
	// selection; they carry no behavior of their own here.
	StoreType        string `json:"store_type,omitempty"`
	StoreProduct     string `json:"store_product,omitempty"`
	Region           string `json:"region,omitempty"`
	AvailabilityZone string `json:"availability_zone,omitempty"`

	// DefaultStorage marks the backend Phase A falls back to when a write
	// doesn't name an explicit storage_id. At most one backend may carry
	// this flag at a time; StorageBackendRepo enforces it on write.
	DefaultStorage bool `json:"default_storage,omitempty"`
}

func (b *StorageBackend) Clone() *StorageBackend {
	if b == nil {
		return nil
	}
	cp := *b
	return &cp
}
