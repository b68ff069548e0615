package domain

// Classify assigns the sendability of a document given its match result.
// Pure: the same (file, match) inputs always yield the same classification.
//
//   - ORPHAN when no recipient matched the filename's identifier
//   - NO_CONTACT when matched but the recipient has no plausible phone number
//   - READY otherwise
func Classify(file DocumentFile, matched *Recipient) Classification {
	if matched == nil {
		return ClassificationOrphan
	}
	if !HasPlausiblePhone(matched.Phone) {
		return ClassificationNoContact
	}
	return ClassificationReady
}
