package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"gorm.io/gorm"

	"github.com/sqlbots/license-admin/internal/models"
	"github.com/sqlbots/license-admin/internal/mykafka"
	"github.com/sqlbots/license-admin/internal/tokens"
)

const (
	ActionLoginSuccess  = "login_success"
	ActionLoginFailed   = "login_failed"
	ActionLogout        = "logout"
	ActionTokenRefresh  = "token_refresh"
	ActionTokenRevoke   = "token_revoke"
	ActionUserDelete    = "user_delete"
	ActionLicenseCreate = "license_create"
	ActionLicenseDelete = "license_delete"
)

const (
	Topic     = "audit_events"
	queueSize = 256
)

// Logger records admin actions off the request path. Entries go through a
// buffered queue to a single worker that writes the database row, then
// publishes to Kafka and indexes into Elasticsearch best-effort. Audit
// failures never fail the operation being audited.
type Logger struct {
	db       *gorm.DB
	producer *mykafka.Producer
	es       *elasticsearch.Client
	index    string
	log      *slog.Logger
	queue    chan models.AuditLog
	done     chan struct{}
}

type Option func(*Logger)

func WithProducer(p *mykafka.Producer) Option {
	return func(l *Logger) { l.producer = p }
}

func WithElasticsearch(es *elasticsearch.Client, index string) Option {
	return func(l *Logger) {
		l.es = es
		l.index = index
	}
}

func NewLogger(db *gorm.DB, log *slog.Logger, opts ...Option) *Logger {
	l := &Logger{
		db:    db,
		index: "audit_logs",
		log:   log,
		queue: make(chan models.AuditLog, queueSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.worker()
	return l
}

// Record enqueues an entry without blocking. A full queue drops the entry
// with a warning rather than stalling the request.
func (l *Logger) Record(e models.AuditLog) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	select {
	case l.queue <- e:
	default:
		l.log.Warn("audit queue full, dropping entry", "action", e.Action)
	}
}

// Close drains pending entries and stops the worker.
func (l *Logger) Close() {
	close(l.queue)
	<-l.done
}

func (l *Logger) worker() {
	defer close(l.done)
	for e := range l.queue {
		l.persist(e)
	}
}

func (l *Logger) persist(e models.AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.db.WithContext(ctx).Create(&e).Error; err != nil {
		l.log.Error("failed to write audit log", "action", e.Action, "error", err)
	}

	if l.producer != nil {
		key := e.Action
		if e.AdminID != nil {
			key = *e.AdminID
		}
		if err := l.producer.PublishEvent(ctx, Topic, key, e); err != nil {
			l.log.Error("failed to publish audit event", "action", e.Action, "error", err)
		}
	}

	if l.es != nil {
		l.indexEntry(ctx, e)
	}
}

func (l *Logger) indexEntry(ctx context.Context, e models.AuditLog) {
	data, err := json.Marshal(e)
	if err != nil {
		l.log.Error("failed to marshal audit entry", "error", err)
		return
	}
	res, err := l.es.Index(
		l.index,
		bytes.NewReader(data),
		l.es.Index.WithContext(ctx),
		l.es.Index.WithDocumentID(fmt.Sprintf("%d", e.ID)),
	)
	if err != nil {
		l.log.Error("failed to index audit entry", "error", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		l.log.Error("failed to index audit entry", "status", res.Status())
	}
}

// ---- entry constructors ----

func detailsJSON(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	data, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(data)
}

func adminID(admin *tokens.AdminPayload) *string {
	if admin == nil {
		return nil
	}
	return &admin.ID
}

func LoginAttempt(admin *tokens.AdminPayload, success bool, ip, userAgent, email string) models.AuditLog {
	e := models.AuditLog{
		Action:    ActionLoginSuccess,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   detailsJSON(map[string]any{"email": email}),
		Success:   success,
	}
	if !success {
		e.Action = ActionLoginFailed
	}
	e.AdminID = adminID(admin)
	return e
}

func Logout(admin *tokens.AdminPayload, ip, userAgent string) models.AuditLog {
	return models.AuditLog{
		AdminID:   adminID(admin),
		Action:    ActionLogout,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	}
}

func TokenRefresh(admin *tokens.AdminPayload, ip, userAgent string) models.AuditLog {
	return models.AuditLog{
		AdminID:   adminID(admin),
		Action:    ActionTokenRefresh,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	}
}

func UserDeletion(admin *tokens.AdminPayload, userID, ip, userAgent string) models.AuditLog {
	return models.AuditLog{
		AdminID:      adminID(admin),
		Action:       ActionUserDelete,
		ResourceType: "user",
		ResourceID:   userID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Success:      true,
	}
}

func LicenseCreation(admin *tokens.AdminPayload, count int, planType, ip, userAgent string) models.AuditLog {
	return models.AuditLog{
		AdminID:      adminID(admin),
		Action:       ActionLicenseCreate,
		ResourceType: "license",
		IPAddress:    ip,
		UserAgent:    userAgent,
		Details:      detailsJSON(map[string]any{"count": count, "planType": planType}),
		Success:      true,
	}
}

func LicenseDeletion(admin *tokens.AdminPayload, licenseID, ip, userAgent string) models.AuditLog {
	return models.AuditLog{
		AdminID:      adminID(admin),
		Action:       ActionLicenseDelete,
		ResourceType: "license",
		ResourceID:   licenseID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Success:      true,
	}
}
