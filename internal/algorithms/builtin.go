package algorithms

import "net/http"

type BuiltinOptions struct {
	HTTPClient *http.Client
	MailSender MailSender
}

// Builtin returns a registry holding every algorithm shipped with the workbench.
func Builtin(opts BuiltinOptions) *Registry {
	return NewRegistry(
		CRSChecker{},
		ExtentChecker{},
		XMLChecker{},
		QMLChecker{},
		LayerSummary{},
		ReportPoster{Client: opts.HTTPClient},
		ReportMailer{Sender: opts.MailSender},
	)
}
