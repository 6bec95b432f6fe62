package observability

// Nil-safe recorders so components can run without a registry (tests, tools).

func (p *Prom) ObserveAuth(result string) {
	if p == nil {
		return
	}
	p.AuthAttempts.WithLabelValues(result).Inc()
}

func (p *Prom) ObserveGeo(outcome string) {
	if p == nil {
		return
	}
	p.GeoLookups.WithLabelValues(outcome).Inc()
}

func (p *Prom) ObserveResultWritten() {
	if p == nil {
		return
	}
	p.ResultsWritten.Inc()
}

func (p *Prom) ObserveResultParseError() {
	if p == nil {
		return
	}
	p.ResultParseErrors.Inc()
}

func (p *Prom) ObserveResultDirRepaired() {
	if p == nil {
		return
	}
	p.ResultDirsRepaired.Inc()
}

func (p *Prom) ObserveResultsCache(outcome string) {
	if p == nil {
		return
	}
	p.ResultsCacheHits.WithLabelValues(outcome).Inc()
}
