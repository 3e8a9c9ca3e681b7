package entity

// Profile is a user's public channel page with subscription counts relative
// to the viewer.
type Profile struct {
	ID               int64  `db:"id" json:"_id,string"`
	Handle           string `db:"handle" json:"handle"`
	FullName         string `db:"full_name" json:"fullName"`
	Email            string `db:"email" json:"email"`
	Avatar           string `db:"avatar_url" json:"avatar"`
	CoverImage       string `db:"cover_image_url" json:"coverImage"`
	SubscribersCount int64  `db:"subscribers_count" json:"subscribersCount"`
	FollowingCount   int64  `db:"following_count" json:"followingCount"`
	IsSubscribed     bool   `db:"is_subscribed" json:"isSubscribed"`
}
