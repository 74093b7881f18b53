package domain

import "sort"

// Patch is an allow-listed set of top-level attribute assignments.
type Patch map[string]any

// CertificatePatchFields are the certificate attributes an admin may rewrite.
var CertificatePatchFields = []string{"status", "metaData", "eligibleForCredits", "issueDate"}

// NewPatch copies fields into a Patch, rejecting empty input and any field outside allowed.
func NewPatch(fields map[string]any, allowed []string) (Patch, error) {
	if len(fields) == 0 {
		return nil, Validation("No update data provided")
	}
	permitted := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		permitted[f] = struct{}{}
	}
	var unknown []string
	patch := make(Patch, len(fields))
	for k, v := range fields {
		if _, ok := permitted[k]; !ok {
			unknown = append(unknown, k)
			continue
		}
		patch[k] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, Validation("Unknown update fields: %v", unknown)
	}
	return patch, nil
}

// Fields returns the patch keys in a stable order.
func (p Patch) Fields() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
