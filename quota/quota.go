package quota

// Token metering for document analysis. A document costs one token per page
// plus one per 100 words, clamped to [1, 100]. The cost is computed before an
// upload is accepted and snapshotted on the document row, so later pricing
// changes never retroactively reprice old documents.

const (
	minTokensPerDocument = 1
	maxTokensPerDocument = 100
	wordsPerToken        = 100
)

// TokensRequired is pure and monotonic non-decreasing in both arguments.
func TokensRequired(pageCount, wordCount int) int {
	if pageCount < 0 {
		pageCount = 0
	}
	if wordCount < 0 {
		wordCount = 0
	}
	tokens := pageCount + (wordCount+wordsPerToken-1)/wordsPerToken
	if tokens < minTokensPerDocument {
		return minTokensPerDocument
	}
	if tokens > maxTokensPerDocument {
		return maxTokensPerDocument
	}
	return tokens
}

func HasSufficientTokens(balance, required int) bool {
	return balance >= required
}

// Shortfall reports how many tokens the balance is missing, 0 when
// sufficient.
func Shortfall(balance, required int) int {
	if balance >= required {
		return 0
	}
	return required - balance
}
