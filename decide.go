package assay

import "github.com/farcloser/assay/internal/types"

// decide applies the verdict policy, first match wins:
//
//  1. a spoofed container is CORRUPT
//  2. a usable arbiter verdict
//  3. a final score at or above the ban threshold is CORRUPT
//  4. the classifier label
//
// The arbitration status only reflects whether the arbiter was consulted and whether it answered.
func decide(
	spoofed bool,
	final, banThreshold float64,
	classification types.Classification,
	arbitration *types.Arbitration,
) (Verdict, ArbitrationStatus) {
	status := StatusLocalOnly

	switch {
	case arbitration == nil:
	case arbitration.Usable():
		status = StatusAIArbitrated
	default:
		status = StatusAIFailed
	}

	switch {
	case spoofed:
		return VerdictCorrupt, status
	case arbitration.Usable():
		return arbitration.Verdict, status
	case final >= banThreshold:
		return VerdictCorrupt, status
	}

	return fromLabel(classification.Label), status
}

func fromLabel(label types.Label) Verdict {
	switch label {
	case types.LabelClean:
		return VerdictClean
	case types.LabelSuspicious:
		return VerdictSuspicious
	case types.LabelCorrupt:
		return VerdictCorrupt
	}

	return VerdictReviewRequired
}
