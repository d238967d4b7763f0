package metrics

// RecordAICall records one upstream AI request and its outcome.
func RecordAICall(provider, status string) {
	AIAPICalls.WithLabelValues(provider, status).Inc()
}

// RecordTokens records token consumption from a completed AI call.
func RecordTokens(inputTokens, outputTokens int) {
	if inputTokens > 0 {
		AITokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		AITokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	}
}

// RecordAccessDecision records one entitlement gate outcome.
func RecordAccessDecision(state string) {
	AccessDecisions.WithLabelValues(state).Inc()
}
