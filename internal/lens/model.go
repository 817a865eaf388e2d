package lens

import "time"

// Role determines which client capabilities are reachable for a user.
// Enforcement is the backend's job.
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleCreator  Role = "creator"
)

// MediaType is the kind of media a post carries.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// User is the identity of an account as returned by the backend.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
	Role      Role   `json:"role"`
}

// IsCreator reports whether the user may reach creator-only features.
func (u User) IsCreator() bool { return u.Role == RoleCreator }

// PostStats holds the like counter and the current user's like state.
type PostStats struct {
	Likes    int  `json:"likes"`
	HasLiked bool `json:"hasLiked"`
}

// Comment is a single comment on a post. Comments are only ever appended.
type Comment struct {
	ID        string `json:"id"`
	User      string `json:"user"` // username
	Text      string `json:"text"`
	Likes     int    `json:"likes"`
	HasLiked  bool   `json:"hasLiked"`
	Timestamp string `json:"timestamp"`

	// Local is set when the comment was synthesized on the client because
	// the server acknowledged the write without returning the object.
	Local bool `json:"-"`
}

// Post is a feed entry.
type Post struct {
	ID        string    `json:"_id"`
	MediaType MediaType `json:"mediaType"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Caption   string    `json:"caption"`
	Location  string    `json:"location,omitempty"`
	People    []string  `json:"people,omitempty"`
	Tags      []string  `json:"tags"`
	Creator   User      `json:"creator"`
	Stats     PostStats `json:"stats"`
	Comments  []Comment `json:"comments"`
	CreatedAt string    `json:"createdAt"`
}

// Clone returns a deep copy of the post so callers can't alias slices held
// by the reconciler.
func (p Post) Clone() Post {
	c := p
	c.People = append([]string(nil), p.People...)
	c.Tags = append([]string(nil), p.Tags...)
	c.Comments = append([]Comment(nil), p.Comments...)
	return c
}

// CreatedTime parses CreatedAt. The zero time is returned if it is not RFC 3339.
func (p Post) CreatedTime() time.Time {
	t, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FeedFilters narrows a feed request. Empty fields are not sent.
type FeedFilters struct {
	Q        string
	Location string
	Tag      string
	Type     MediaType
	Username string
}

// IsZero reports whether no filter field is set.
func (f *FeedFilters) IsZero() bool {
	return f == nil || (f.Q == "" && f.Location == "" && f.Tag == "" && f.Type == "" && f.Username == "")
}

// AuthResult is the payload of a successful login or signup.
type AuthResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// UploadRequest describes a media upload. Tags is the raw comma-separated
// string entered by the user.
type UploadRequest struct {
	FileName string
	Size     int64
	Title    string
	Caption  string
	Location string
	Tags     string
}

// CreatorAccount is the input for creating a creator account as an admin.
type CreatorAccount struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
