package ir

// EntityMeta is the part of every synced entity the conflict policy reads.
type EntityMeta struct {
	ID        string     `json:"id"`
	CircleID  string     `json:"circleId"`
	AuthorID  string     `json:"authorId"`
	CreatedAt Timestamp  `json:"createdAt"`
	UpdatedAt Timestamp  `json:"updatedAt"`
	DeletedAt *Timestamp `json:"deletedAt,omitempty"`
}

// Deleted reports whether the entity carries a soft-delete marker.
func (m EntityMeta) Deleted() bool {
	return m.DeletedAt != nil
}

// Entity is any synced entity.
type Entity interface {
	Meta() EntityMeta
}

// Moment is a timestamped journal entry in a circle.
type Moment struct {
	EntityMeta
	Content       string       `json:"content"`
	MediaType     string       `json:"mediaType"`
	MediaURL      *string      `json:"mediaUrl,omitempty"`
	Timestamp     string       `json:"timestamp"`
	TimeLabel     *string      `json:"timeLabel,omitempty"`
	ContextTags   []ContextTag `json:"contextTags"`
	Location      *string      `json:"location,omitempty"`
	IsFavorite    bool         `json:"isFavorite"`
	FutureMessage *string      `json:"futureMessage,omitempty"`
}

func (m *Moment) Meta() EntityMeta { return m.EntityMeta }

// Letter states.
const (
	LetterDraft    = "draft"
	LetterSealed   = "sealed"
	LetterUnlocked = "unlocked"
)

// Letter is a time-capsule message.
type Letter struct {
	EntityMeta
	Title      string     `json:"title"`
	Preview    string     `json:"preview"`
	Content    *string    `json:"content,omitempty"`
	Status     string     `json:"status"`
	Type       string     `json:"type"`
	Recipient  string     `json:"recipient"`
	UnlockDate *string    `json:"unlockDate,omitempty"`
	SealedAt   *Timestamp `json:"sealedAt,omitempty"`
}

func (l *Letter) Meta() EntityMeta { return l.EntityMeta }

// Comment is a remark on a moment.
type Comment struct {
	EntityMeta
	TargetID   string  `json:"targetId"`
	TargetType string  `json:"targetType"`
	Content    string  `json:"content"`
	ReplyToID  *string `json:"replyToId,omitempty"`
}

func (c *Comment) Meta() EntityMeta { return c.EntityMeta }

// User is an account known to the server.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    *string   `json:"avatar,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
}

// Circle is a private group.
type Circle struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate *string   `json:"startDate,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// Member is a circle membership joined with its user.
type Member struct {
	CircleID  string    `json:"circleId"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	RoleLabel *string   `json:"roleLabel,omitempty"`
	JoinedAt  Timestamp `json:"joinedAt"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    *string   `json:"avatar,omitempty"`
}

// Member roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Snapshot is the body of GET /sync/full.
type Snapshot struct {
	Circle          Circle     `json:"circle"`
	Members         []Member   `json:"members"`
	Moments         []*Moment  `json:"moments"`
	Letters         []*Letter  `json:"letters"`
	Comments        []*Comment `json:"comments"`
	ServerTimestamp Timestamp  `json:"serverTimestamp"`
}

// CircleStatus is one row of GET /sync/status.
type CircleStatus struct {
	CircleID string     `json:"circleId"`
	Name     string     `json:"name"`
	LastSync *Timestamp `json:"lastSync"`
}

// StatusResponse is the body of GET /sync/status.
type StatusResponse struct {
	Circles         []CircleStatus `json:"circles"`
	ServerTimestamp Timestamp      `json:"serverTimestamp"`
}
