package lens

// Persisted storage keys owned by the SessionStore.
const (
	TokenKey       = "auth_token"
	CurrentUserKey = "photo_share_current_user"
)

// Store is the persisted key/value storage backing the session.
// Only the SessionStore writes session keys; everything else may read.
type Store interface {
	// Get returns the value for key. ok is false if the key is absent.
	Get(key string) (value string, ok bool, err error)

	// Set writes value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes the keys. Missing keys are not an error.
	Delete(keys ...string) error

	// Close releases the underlying storage.
	Close() error
}
