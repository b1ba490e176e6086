package syncer

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// strongSignatures identify a unique-constraint violation on their own,
// whatever the status code.
var strongSignatures = []string{
	"duplicate key",
	"unique constraint",
	"23505",
}

// weakSignatures only count on a 409.
var weakSignatures = []string{
	"already exists",
	"duplicate",
}

var (
	identityPattern  = regexp.MustCompile(`identity_code[^0-9A-Za-z]+([0-9A-Za-z_\-.]+)`)
	timestampPattern = regexp.MustCompile(`(?:punched_at|timestamp)[^0-9]+([0-9]{10,})`)
)

// parseConflict inspects an error response. The structured envelope decides
// on its own: only code DUPLICATE_RECORD is a conflict. A body that is not
// the envelope is a conflict when it carries a strong duplicate signature,
// or a weak one on a 409. Anything else keeps its status classification.
func parseConflict(status int, body []byte) (*ConflictError, bool) {
	var envelope domain.ErrorBody
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		if envelope.Error.Code != domain.ErrDuplicateRecord.Code {
			return nil, false
		}
		return &ConflictError{StatusCode: status, Record: envelope.Error.Conflict, Body: string(body)}, true
	}

	text := strings.ToLower(string(body))
	duplicate := containsAny(text, strongSignatures) ||
		(status == http.StatusConflict && containsAny(text, weakSignatures))
	if !duplicate {
		return nil, false
	}

	return &ConflictError{StatusCode: status, Record: extractRecord(string(body)), Body: string(body)}, true
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func extractRecord(text string) *domain.ConflictDetail {
	idMatch := identityPattern.FindStringSubmatch(text)
	tsMatch := timestampPattern.FindStringSubmatch(text)
	if idMatch == nil || tsMatch == nil {
		return nil
	}

	ts, err := strconv.ParseInt(tsMatch[1], 10, 64)
	if err != nil {
		return nil
	}

	return &domain.ConflictDetail{IdentityCode: idMatch[1], Timestamp: ts}
}

// matchConflict returns the ids of batch records the conflict refers to.
func matchConflict(records []domain.BatchRecord, detail *domain.ConflictDetail) []int64 {
	var ids []int64
	for _, r := range records {
		if r.IdentityCode != detail.IdentityCode || r.Timestamp != detail.Timestamp {
			continue
		}
		if detail.Type != "" && r.Type != detail.Type {
			continue
		}
		ids = append(ids, r.LocalID)
	}
	return ids
}
