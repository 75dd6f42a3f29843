package catalog

import "encoding/json"

// Resource is the simplified view of a catalog resource (dataset, notebook,
// repository, or model) handed to agents.
type Resource struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// Project is the simplified view of a workspace project.
type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	OwnerID     string   `json:"owner_id"`
	CreatedAt   string   `json:"created_at,omitempty"`
	Resources   []string `json:"resources"`
}

// Session is the simplified view of an interactive session.
type Session struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ResourceFilter narrows ListResources results. Zero values are omitted from
// the upstream query.
type ResourceFilter struct {
	Type   string
	Tags   string
	Name   string
	Limit  int
	Offset int
}

// upstream shapes: the catalog API speaks camelCase and wraps paged listings
// in a content envelope.

// flexID tolerates numeric or string identifiers; the catalog is not
// consistent across controllers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

type upstreamResource struct {
	ID          flexID   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

func (u upstreamResource) simplified() Resource {
	tags := u.Tags
	if tags == nil {
		tags = []string{}
	}
	return Resource{
		ID:          u.ID.String(),
		Name:        u.Name,
		Type:        u.Type,
		Description: u.Description,
		Tags:        tags,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type upstreamProject struct {
	ID          flexID   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	OwnerID     flexID   `json:"ownerId"`
	CreatedAt   string   `json:"createdAt"`
	Resources   []string `json:"resources"`
}

func (u upstreamProject) simplified() Project {
	resources := u.Resources
	if resources == nil {
		resources = []string{}
	}
	return Project{
		ID:          u.ID.String(),
		Name:        u.Name,
		Description: u.Description,
		OwnerID:     u.OwnerID.String(),
		CreatedAt:   u.CreatedAt,
		Resources:   resources,
	}
}

type upstreamSession struct {
	ID        flexID `json:"id"`
	ProjectID flexID `json:"projectId"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func (u upstreamSession) simplified() Session {
	return Session{
		ID:        u.ID.String(),
		ProjectID: u.ProjectID.String(),
		Name:      u.Name,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}
