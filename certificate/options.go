package certificate

import (
	"log/slog"
	"os"
	"time"
)

// Option configures an Issuer, Validator, Loader or Exporter. Options that
// do not apply to a component are ignored by it.
type Option func(*options)

type options struct {
	logger            *slog.Logger
	now               func() time.Time
	inliner           CSSInliner
	notifier          Notifier
	generator         *IdentifierGenerator
	defaults          IssueDefaults
	maxInsertAttempts int
	cache             Cache
}

// IssueDefaults are the identifier settings used when an issuance does not
// override them.
type IssueDefaults struct {
	Prefix      string
	Length      int
	FixedLength bool
}

func newOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		now:    time.Now,
		defaults: IssueDefaults{
			Prefix:      DefaultPrefix,
			Length:      MaxIdentifierLength,
			FixedLength: true,
		},
		maxInsertAttempts: 10,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.generator == nil {
		o.generator = NewIdentifierGenerator()
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCSSInliner sets the collaborator that merges template CSS into the
// rendered body. Without one the body is stored unmerged.
func WithCSSInliner(inliner CSSInliner) Option {
	return func(o *options) {
		o.inliner = inliner
	}
}

// WithNotifier sets the sink for issuance events.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithGenerator replaces the identifier generator.
func WithGenerator(g *IdentifierGenerator) Option {
	return func(o *options) {
		o.generator = g
	}
}

// WithDefaults sets the identifier defaults.
// Default: prefix "CERT", length 30, fixed length.
func WithDefaults(d IssueDefaults) Option {
	return func(o *options) {
		o.defaults = d
	}
}

// WithMaxInsertAttempts bounds how many identifiers are tried when the
// repository rejects an insert as a duplicate. Default: 10.
func WithMaxInsertAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxInsertAttempts = n
		}
	}
}

// WithCache sets the caller-owned cache used by Loader.
func WithCache(c Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// IssueOption configures a single issuance.
type IssueOption func(*issueParams)

type issueParams struct {
	prefix      string
	length      int
	fixedLength bool
	expiry      string
	comment     string
	client      string
	clientID    int64
}

// WithPrefix sets the identifier prefix.
func WithPrefix(prefix string) IssueOption {
	return func(p *issueParams) {
		p.prefix = prefix
	}
}

// WithRandomLength sets the requested digit suffix length. Values outside
// [1, 30] select a random length.
func WithRandomLength(n int) IssueOption {
	return func(p *issueParams) {
		p.length = n
	}
}

// WithFixedLength controls whether the suffix length is used exactly or as
// an upper bound.
func WithFixedLength(fixed bool) IssueOption {
	return func(p *issueParams) {
		p.fixedLength = fixed
	}
}

// WithExpiry sets the raw expiry, "YYYY-MM-DD" or "YYYY-MM-DD HH:MM:SS".
func WithExpiry(raw string) IssueOption {
	return func(p *issueParams) {
		p.expiry = raw
	}
}

// WithComment attaches a free-text comment.
func WithComment(comment string) IssueOption {
	return func(p *issueParams) {
		p.comment = comment
	}
}

// WithClient records the issuing context, e.g. a course and its id.
func WithClient(client string, clientID int64) IssueOption {
	return func(p *issueParams) {
		p.client = client
		p.clientID = clientID
	}
}
