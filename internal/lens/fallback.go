package lens

// fallbackPosts is static placeholder content shown when the feed cannot be
// loaded. It is not a cache and says nothing about the requested filters.
var fallbackPosts = []Post{
	{
		ID:        "101",
		MediaType: MediaImage,
		URL:       "https://images.unsplash.com/photo-1516035069371-29a1b244cc32?q=80&w=1000&auto=format&fit=crop",
		Title:     "City Sunset",
		Caption:   "The way the light hits the buildings here is incredible.",
		Tags:      []string{"urban", "architecture", "goldenhour"},
		Creator:   User{ID: "2", Username: "alex_shots", Email: "alex@example.com", AvatarURL: "https://i.pravatar.cc/150?u=alex", Role: RoleConsumer},
		Stats:     PostStats{Likes: 120, HasLiked: true},
		Comments: []Comment{
			{ID: "c1", User: "sarah_m", Text: "This lighting is perfect.", Likes: 2, Timestamp: "2025-12-19T10:00:00Z"},
			{ID: "c2", User: "mike_cam", Text: "Where was this taken?", Timestamp: "2025-12-19T10:05:00Z"},
		},
		CreatedAt: "2025-12-19T09:00:00Z",
	},
	{
		ID:        "102",
		MediaType: MediaImage,
		URL:       "https://images.unsplash.com/photo-1506744038136-46273834b3fb?q=80&w=1000&auto=format&fit=crop",
		Title:     "Alpine Adventure",
		Caption:   "Finally made it to the summit. The view was worth the hike.",
		Location:  "Swiss Alps",
		Tags:      []string{"hiking", "outdoors", "mountains"},
		Creator:   User{ID: "3", Username: "outdoor_life", Email: "outdoors@example.com", AvatarURL: "https://i.pravatar.cc/150?u=outdoors", Role: RoleCreator},
		Stats:     PostStats{Likes: 350},
		CreatedAt: "2025-12-19T08:00:00Z",
	},
	{
		ID:        "103",
		MediaType: MediaImage,
		URL:       "https://images.unsplash.com/photo-1540206395-688085723adb?q=80&w=1000&auto=format&fit=crop",
		Title:     "Modern Lines",
		Caption:   "Details matter in contemporary design.",
		Tags:      []string{"minimalism", "structures"},
		Creator:   User{ID: "1", Username: "visual_s", Email: "v@example.com", AvatarURL: "https://github.com/shadcn.png", Role: RoleCreator},
		Stats:     PostStats{Likes: 45},
		CreatedAt: "2025-12-18T20:00:00Z",
	},
	{
		ID:        "104",
		MediaType: MediaImage,
		URL:       "https://images.unsplash.com/photo-1470071459604-3b5ec3a7fe05?q=80&w=1000&auto=format&fit=crop",
		Title:     "Forest Walk",
		Caption:   "Spending some time off the grid.",
		Tags:      []string{"nature", "peaceful"},
		Creator:   User{ID: "3", Username: "outdoor_life", Email: "outdoors@example.com", AvatarURL: "https://i.pravatar.cc/150?u=outdoors", Role: RoleCreator},
		Stats:     PostStats{Likes: 89},
		Comments: []Comment{
			{ID: "c3", User: "alex_shots", Text: "So calming.", Likes: 1, HasLiked: true, Timestamp: "2025-12-18T10:00:00Z"},
		},
		CreatedAt: "2025-12-18T19:00:00Z",
	},
	{
		ID:        "105",
		MediaType: MediaImage,
		URL:       "https://images.unsplash.com/photo-1493612276216-ee3925520721?q=80&w=1000&auto=format&fit=crop",
		Title:     "Morning Ritual",
		Caption:   "Starting the day right.",
		Tags:      []string{"cafe", "morning"},
		Creator:   User{ID: "2", Username: "alex_shots", Email: "alex@example.com", AvatarURL: "https://i.pravatar.cc/150?u=alex", Role: RoleConsumer},
		Stats:     PostStats{Likes: 23},
		CreatedAt: "2025-12-19T09:30:00Z",
	},
}

// FallbackPosts returns a fresh deep copy of the placeholder posts.
func FallbackPosts() []Post {
	out := make([]Post, len(fallbackPosts))
	for i, p := range fallbackPosts {
		out[i] = p.Clone()
	}
	return out
}
