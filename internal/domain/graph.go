package domain

// Role is the position of a node relative to the center account.
type Role string

const (
	RoleCenter    Role = "center"
	RoleFollower  Role = "follower"
	RoleFollowing Role = "following"
	RoleInstance  Role = "instance"
)

// EdgeKindInstance marks links that attach a peer to its instance node.
// Relationship links carry no kind.
const EdgeKindInstance = "instance"

// GraphNode is one account or instance in the rendered graph.
type GraphNode struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Avatar         string `json:"avatar,omitempty"`
	Role           Role   `json:"role"`
	Instance       string `json:"instance,omitempty"`
	FollowerCount  int64  `json:"followerCount"`
	FollowingCount int64  `json:"followingCount"`
}

// GraphEdge links two node ids; Kind is empty for relationship links.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind,omitempty"`
}

// Graph is the payload served to the rendering layer.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphEdge `json:"links"`
}
