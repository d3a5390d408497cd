package graph

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
)

// UnknownInstance names the instance of accounts without a parsable profile URL.
const UnknownInstance = "unknown"

// Options toggles optional graph decorations.
type Options struct {
	// InstanceLinks adds one node per peer instance and links each peer to it.
	InstanceLinks bool
}

// Assemble builds the relationship graph around center.
//
// Nodes are emitted center first, then followers and followings in input
// order. An id present in both lists yields a single node with role
// following at the follower list position. Edges are not deduplicated, so a
// mutual relationship produces two edges.
func Assemble(center domain.Account, followers, followings []domain.Account) (*domain.Graph, error) {
	return AssembleWithOptions(center, followers, followings, Options{})
}

// AssembleWithOptions is Assemble with optional decorations.
func AssembleWithOptions(center domain.Account, followers, followings []domain.Account, opts Options) (*domain.Graph, error) {
	if center.ID == "" {
		return nil, fmt.Errorf("%w: center has empty id", domain.ErrInvalidAccount)
	}
	if err := validate(domain.RelationshipFollowers, followers); err != nil {
		return nil, err
	}
	if err := validate(domain.RelationshipFollowing, followings); err != nil {
		return nil, err
	}

	following := make(map[string]struct{}, len(followings))
	for _, a := range followings {
		following[a.ID] = struct{}{}
	}

	g := &domain.Graph{
		Nodes: make([]domain.GraphNode, 0, 1+len(followers)+len(followings)),
		Links: make([]domain.GraphEdge, 0, len(followers)+len(followings)),
	}
	seen := make(map[string]struct{}, cap(g.Nodes))

	g.Nodes = append(g.Nodes, node(center, domain.RoleCenter))
	seen[center.ID] = struct{}{}

	for _, a := range followers {
		g.Links = append(g.Links, domain.GraphEdge{Source: center.ID, Target: a.ID})
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}

		role := domain.RoleFollower
		if _, mutual := following[a.ID]; mutual {
			role = domain.RoleFollowing
		}
		g.Nodes = append(g.Nodes, node(a, role))
	}

	for _, a := range followings {
		g.Links = append(g.Links, domain.GraphEdge{Source: center.ID, Target: a.ID})
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		g.Nodes = append(g.Nodes, node(a, domain.RoleFollowing))
	}

	if opts.InstanceLinks {
		addInstances(g, center.ID)
	}

	return g, nil
}

func validate(rel domain.Relationship, accounts []domain.Account) error {
	for i, a := range accounts {
		if a.ID == "" {
			return fmt.Errorf("%w: %s[%d] has empty id", domain.ErrInvalidAccount, rel, i)
		}
	}
	return nil
}

func node(a domain.Account, role domain.Role) domain.GraphNode {
	return domain.GraphNode{
		ID:             a.ID,
		Username:       a.Username,
		Avatar:         a.AvatarURL,
		Role:           role,
		Instance:       InstanceOf(a),
		FollowerCount:  a.FollowersCount,
		FollowingCount: a.FollowingCount,
	}
}

// addInstances appends instance nodes in order of first appearance and one
// link per peer node.
func addInstances(g *domain.Graph, centerID string) {
	var instances []domain.GraphNode
	var links []domain.GraphEdge
	known := make(map[string]struct{})

	for _, n := range g.Nodes {
		if n.ID == centerID {
			continue
		}
		id := InstanceNodeID(n.Instance)
		if _, ok := known[id]; !ok {
			known[id] = struct{}{}
			instances = append(instances, domain.GraphNode{
				ID:       id,
				Username: n.Instance,
				Role:     domain.RoleInstance,
				Instance: n.Instance,
			})
		}
		links = append(links, domain.GraphEdge{Source: id, Target: n.ID, Kind: domain.EdgeKindInstance})
	}

	g.Nodes = append(g.Nodes, instances...)
	g.Links = append(g.Links, links...)
}

// InstanceNodeID is the node id used for an instance cluster.
func InstanceNodeID(instance string) string {
	return "instance-" + instance
}

// InstanceOf returns the lowercased host of the account's profile URL, or
// UnknownInstance.
func InstanceOf(a domain.Account) string {
	if a.URL == "" {
		return UnknownInstance
	}
	u, err := url.Parse(a.URL)
	if err != nil || u.Hostname() == "" {
		return UnknownInstance
	}
	return strings.ToLower(u.Hostname())
}
