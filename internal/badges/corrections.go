package badges

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

// A valid correction is a review comment on a PR that the PR's author
// answered with a later push to the PR head branch. Candidates are collected
// first, one batched push lookup covers all of them, and the matching plus
// per-(reviewer, PR) deduplication happen in memory.

type correctionCandidate struct {
	reviewer  string
	prURL     string
	author    string
	branchRef string
	after     time.Time
}

type pushRecord struct {
	sender     string
	ref        string
	receivedAt time.Time
}

// countCorrections returns the number of valid corrections per reviewer for
// the given review-comment events.
func (s *Service) countCorrections(ctx context.Context, comments []*domain.Event) (map[string]int, error) {
	if len(comments) == 0 {
		return map[string]int{}, nil
	}

	candidates := make([]correctionCandidate, 0, len(comments))
	authors := make(map[string]bool)
	var earliest time.Time

	for _, comment := range comments {
		var payload domain.ReviewPayload
		if err := domain.DecodePayload(comment, &payload); err != nil {
			s.log.Warn("Skipping undecodable review comment",
				zap.String("delivery_id", comment.DeliveryID), zap.Error(err))
			continue
		}
		author := payload.PullRequest.User.Login
		headRef := payload.PullRequest.Head.Ref
		if author == "" || headRef == "" {
			continue
		}
		candidates = append(candidates, correctionCandidate{
			reviewer:  comment.SenderLogin,
			prURL:     payload.PullRequest.HTMLURL,
			author:    author,
			branchRef: "refs/heads/" + headRef,
			after:     comment.ReceivedAt,
		})
		authors[author] = true
		if earliest.IsZero() || comment.ReceivedAt.Before(earliest) {
			earliest = comment.ReceivedAt
		}
	}
	if len(candidates) == 0 {
		return map[string]int{}, nil
	}

	senders := make([]string, 0, len(authors))
	for author := range authors {
		senders = append(senders, author)
	}

	pushes, err := s.events.FindPushesBySenders(ctx, senders, earliest)
	if err != nil {
		return nil, err
	}

	records := make([]pushRecord, 0, len(pushes))
	for _, push := range pushes {
		var payload domain.PushPayload
		if err := domain.DecodePayload(push, &payload); err != nil {
			continue
		}
		records = append(records, pushRecord{
			sender:     push.SenderLogin,
			ref:        payload.Ref,
			receivedAt: push.ReceivedAt,
		})
	}

	corrections := make(map[string]int)
	counted := make(map[string]bool)

	for _, candidate := range candidates {
		if candidate.prURL == "" {
			continue
		}
		key := candidate.reviewer + ":" + candidate.prURL
		if counted[key] {
			continue
		}
		if hasSubsequentPush(records, candidate) {
			corrections[candidate.reviewer]++
			counted[key] = true
		}
	}

	return corrections, nil
}

func hasSubsequentPush(records []pushRecord, candidate correctionCandidate) bool {
	for _, push := range records {
		if push.sender == candidate.author &&
			push.ref == candidate.branchRef &&
			push.receivedAt.After(candidate.after) {
			return true
		}
	}
	return false
}
