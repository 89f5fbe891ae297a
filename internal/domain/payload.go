package domain

import (
	"encoding/json"
	"fmt"
)

// Payload projections. The raw webhook body is stored verbatim on the event;
// these structs decode only the fields the rules read. Signature verification
// happens upstream, before bytes reach this service.

// Actor is a sender/author reference inside a payload.
type Actor struct {
	Login string `json:"login"`
}

// CommitParent identifies a parent commit; only the count matters to rules.
type CommitParent struct {
	SHA string `json:"sha"`
}

// Commit is one commit inside a push payload.
type Commit struct {
	ID       string         `json:"id"`
	Message  string         `json:"message"`
	Distinct bool           `json:"distinct"`
	Parents  []CommitParent `json:"parents"`
	Added    []string       `json:"added"`
	Modified []string       `json:"modified"`
}

// PushPayload covers push events.
type PushPayload struct {
	Ref     string   `json:"ref"`
	After   string   `json:"after"`
	Forced  bool     `json:"forced"`
	Commits []Commit `json:"commits"`
}

// RefPayload covers create and delete events.
type RefPayload struct {
	RefType string `json:"ref_type"`
	Ref     string `json:"ref"`
}

// PullRequest is the pull_request object shared by PR and review payloads.
type PullRequest struct {
	ID             int64  `json:"id"`
	Number         int    `json:"number"`
	Body           string `json:"body"`
	Merged         bool   `json:"merged"`
	MergeCommitSHA string `json:"merge_commit_sha"`
	HTMLURL        string `json:"html_url"`
	User           Actor  `json:"user"`
	MergedBy       *Actor `json:"merged_by"`
	Head           struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

// PullRequestPayload covers pull_request events.
type PullRequestPayload struct {
	Action      string      `json:"action"`
	PullRequest PullRequest `json:"pull_request"`
}

// ReviewPayload covers pull_request_review and pull_request_review_comment
// events.
type ReviewPayload struct {
	Action string `json:"action"`
	Review struct {
		State string `json:"state"`
		Body  string `json:"body"`
	} `json:"review"`
	PullRequest PullRequest `json:"pull_request"`
}

// ReleasePayload covers release events.
type ReleasePayload struct {
	Action  string `json:"action"`
	Release struct {
		ID      int64  `json:"id"`
		TagName string `json:"tag_name"`
		Body    string `json:"body"`
	} `json:"release"`
}

// senderEnvelope extracts the acting identity from any payload shape.
type senderEnvelope struct {
	Sender *Actor `json:"sender"`
	Pusher *struct {
		Name string `json:"name"`
	} `json:"pusher"`
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Action string `json:"action"`
}

// DecodePayload unmarshals an event's stored payload into dst.
func DecodePayload(e *Event, dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload for delivery %s: %w", e.EventType, e.DeliveryID, err)
	}
	return nil
}

// ExtractSender returns the sender login from a raw payload, falling back to
// the pusher name as push payloads do not always carry a sender.
func ExtractSender(raw []byte) string {
	var env senderEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	if env.Sender != nil && env.Sender.Login != "" {
		return env.Sender.Login
	}
	if env.Pusher != nil {
		return env.Pusher.Name
	}
	return ""
}

// ExtractRepo returns the repository full name from a raw payload, if present.
func ExtractRepo(raw []byte) string {
	var env senderEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	if env.Repository != nil {
		return env.Repository.FullName
	}
	return ""
}

// ExtractAction returns the top-level action field from a raw payload.
func ExtractAction(raw []byte) string {
	var env senderEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Action
}
