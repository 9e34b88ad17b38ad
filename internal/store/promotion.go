package store

import (
	"database/sql"
	"errors"

	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/model"
)

// noSemanticPrefix scopes exact-mode cache keys so they never
// cross-contaminate with hybrid-mode entries (§4.9).
const noSemanticPrefix = "no-semantic:"

// demoteThreshold is the consecutive-failure run length past which Lookup
// stops returning a selector, even if its lifetime success_count is
// positive (§4 SPEC_FULL: promotion entries decay). consecutive_failures
// resets to 0 on every success, so a selector that is merely flaky keeps
// being looked up; one that has failed demoteThreshold times in a row
// without an intervening success is treated as stale.
const demoteThreshold = 3

// ScopeLabelKey prefixes labelKey for exact (no-semantic) mode.
func ScopeLabelKey(labelKey string, semantic bool) string {
	if semantic {
		return labelKey
	}
	return noSemanticPrefix + labelKey
}

// Lookup returns the highest-success_count selector for
// (pageSig, frameHash, labelKey), tie-breaking by lower failure_count
// then newer updated_at. Returns ("", false, nil) if absent, if the best
// row has failure_count >= success_count and success_count == 0, or if
// its consecutive_failures run has reached demoteThreshold (§4.9, §4
// SPEC_FULL decay).
func (s *Store) Lookup(pageSig, frameHash, labelKey string) (string, bool, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Lookup")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT selector, success_count, failure_count, consecutive_failures
		FROM promotions
		WHERE page_sig = ? AND frame_hash = ? AND label_key = ?
		ORDER BY success_count DESC, failure_count ASC, updated_at DESC
		LIMIT 1`, pageSig, frameHash, labelKey)

	var selector string
	var successCount, failureCount, consecutiveFailures int
	if err := row.Scan(&selector, &successCount, &failureCount, &consecutiveFailures); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}

	if successCount == 0 && failureCount >= successCount {
		logging.StoreDebug("promotion lookup found only failing entries for label_key=%s", labelKey)
		return "", false, nil
	}
	if consecutiveFailures >= demoteThreshold {
		logging.StoreDebug("promotion lookup excluded demoted selector=%s label_key=%s consecutive_failures=%d", selector, labelKey, consecutiveFailures)
		return "", false, nil
	}

	logging.Store("promotion hit label_key=%s selector=%s success=%d failure=%d", labelKey, selector, successCount, failureCount)
	return selector, true, nil
}

// Record upserts the (pageSig, frameHash, labelKey, selector) row,
// incrementing the relevant lifetime counter, updating the
// consecutive_failures run (reset on success, incremented on failure),
// and refreshing updated_at (§4.9, §4 SPEC_FULL decay).
func (s *Store) Record(pageSig, frameHash, labelKey, selector string, success bool) error {
	timer := logging.StartTimer(logging.CategoryStore, "Record")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	successDelta, failureDelta := 0, 0
	if success {
		successDelta = 1
	} else {
		failureDelta = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO promotions (page_sig, frame_hash, label_key, selector, success_count, failure_count, consecutive_failures, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_sig, frame_hash, label_key, selector) DO UPDATE SET
			success_count = success_count + excluded.success_count,
			failure_count = failure_count + excluded.failure_count,
			consecutive_failures = CASE WHEN excluded.success_count > 0 THEN 0 ELSE consecutive_failures + 1 END,
			updated_at = excluded.updated_at`,
		pageSig, frameHash, labelKey, selector, successDelta, failureDelta, failureDelta, nowUnix())
	if err != nil {
		return err
	}

	logging.StoreDebug("recorded selector=%s success=%v for label_key=%s", selector, success, labelKey)
	return nil
}

// Demote explicitly penalises a selector without a failed execution
// having occurred — e.g. when the orchestrator's promotion-lookup probe
// (internal/pipeline checkPromotion) finds a previously-promoted selector
// no longer resolves on the page at all. It runs the same consecutive-
// failure accounting Record does, so demoteThreshold consecutive Demote
// (or failed-execution Record) calls exclude the selector from Lookup
// (supplemented feature, §4 SPEC_FULL, grounded in original_source's
// promotion.py demotion path).
func (s *Store) Demote(pageSig, frameHash, labelKey, selector string) error {
	return s.Record(pageSig, frameHash, labelKey, selector, false)
}

// ListAll returns every promotion row in the store, for the `her inspect
// promotions` CLI subcommand where the caller has no particular page/frame in
// mind yet.
func (s *Store) ListAll() ([]model.PromotionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT page_sig, frame_hash, label_key, selector, success_count, failure_count, consecutive_failures, updated_at
		FROM promotions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PromotionEntry
	for rows.Next() {
		var e model.PromotionEntry
		var updatedAt int64
		if err := rows.Scan(&e.PageSig, &e.FrameHash, &e.LabelKey, &e.Selector, &e.SuccessCount, &e.FailureCount, &e.ConsecutiveFailures, &updatedAt); err != nil {
			return nil, err
		}
		e.UpdatedAt = unixToTime(updatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResetPromotions deletes every promotion row, for `her promote reset`.
func (s *Store) ResetPromotions() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM promotions`)
	return err
}

// ListEntries returns every promotion row for a (pageSig, frameHash)
// pair, for debugging/inspection tooling.
func (s *Store) ListEntries(pageSig, frameHash string) ([]model.PromotionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT page_sig, frame_hash, label_key, selector, success_count, failure_count, consecutive_failures, updated_at
		FROM promotions WHERE page_sig = ? AND frame_hash = ?`, pageSig, frameHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PromotionEntry
	for rows.Next() {
		var e model.PromotionEntry
		var updatedAt int64
		if err := rows.Scan(&e.PageSig, &e.FrameHash, &e.LabelKey, &e.Selector, &e.SuccessCount, &e.FailureCount, &e.ConsecutiveFailures, &updatedAt); err != nil {
			return nil, err
		}
		e.UpdatedAt = unixToTime(updatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
