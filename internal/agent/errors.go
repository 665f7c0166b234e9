package agent

import (
	"errors"
	"strings"

	"charm.land/fantasy"

	"github.com/dotcommander/multiagent/internal/errs"
)

const deprecationsURL = "https://console.groq.com/docs/deprecations"

// classify maps a runner failure onto the error taxonomy. Errors that did
// not come from the model API are returned unchanged.
func (s *Service) classify(err error, model string) error {
	var providerErr *fantasy.ProviderError
	if !errors.As(err, &providerErr) {
		s.log.Error().Err(err).Strs("trace", errs.Chain(err)).Str("model", model).Msg("agent run failed")
		return err
	}

	if isDecommissioned(providerErr) {
		s.log.Error().Str("model", model).Msgf("Model %s has been decommissioned by %s", model, s.cfg.ProviderLabel())
		return errs.Wrapf(errs.ModelDecommissioned, err,
			"The model '%s' has been decommissioned and is no longer available. "+
				"Please select a different model from the available options. "+
				"See %s for more information.",
			model, deprecationsURL,
		)
	}

	s.log.Error().Err(err).Int("status", int(providerErr.StatusCode)).Msgf("%s API error", s.cfg.ProviderLabel())
	return errs.Wrapf(errs.ModelAPIError, err, "%s API error: %s", s.cfg.ProviderLabel(), providerMessage(providerErr))
}

func isDecommissioned(err *fantasy.ProviderError) bool {
	if strings.Contains(strings.ToLower(err.Message), "decommissioned") {
		return true
	}
	return strings.Contains(strings.ToLower(string(err.ResponseBody)), "decommissioned")
}

func providerMessage(err *fantasy.ProviderError) string {
	if msg := strings.TrimSpace(err.Message); msg != "" {
		return msg
	}
	if title := fantasy.ErrorTitleForStatusCode(err.StatusCode); title != "" {
		return title
	}
	return err.Error()
}
