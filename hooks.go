package kvstore

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// Most are invoked while the mutation section is held.
type Hooks interface {
	// A backend row could not be decoded or had an invalid key; it was skipped on load.
	RowSkipped(key string, err error)

	// An expired record was evicted (lazily on read or by the sweep).
	Expired(key string)

	// The sweep could not evict key; it is retried on the next cycle.
	SweepFailed(key string, err error)

	// A backend commit failed; the cache was left untouched.
	// op ∈ {"put", "remove", "evict", "tag", "ttl", "import"}
	CommitFailed(op string, keys []string, err error)

	// The shared version counter failed or went backwards; the store fell back to local+1.
	VersionBumpError(err error)

	// The recent history log could not be written.
	RecentPersistFailed(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) RowSkipped(string, error)             {}
func (NopHooks) Expired(string)                       {}
func (NopHooks) SweepFailed(string, error)            {}
func (NopHooks) CommitFailed(string, []string, error) {}
func (NopHooks) VersionBumpError(error)               {}
func (NopHooks) RecentPersistFailed(string, error)    {}
