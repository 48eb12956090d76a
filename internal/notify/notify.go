// Package notify dispatches routing-requested notifications through
// channel adapters (§4.6 step 6: "Dispatch notifications via channel
// adapters if routing rule requests it."). Two adapters ship today, SMS
// via AWS SNS and email via AWS SESv2, matching the pair the teacher's
// auth-service already wires for its own verification-code flow.
//
// Grounded on auth-service/internal/services/sms_service.go (SNS
// Publish with a Transactional SMSType) and email_service.go (SESv2
// SendEmail with a Simple HTML body) — kept HOW, replaced WHAT: the
// verification-code message becomes a routing-escalation notice, and
// the recipient resolves from the Job's department fallback contact
// instead of a signed-in user record.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// DepartmentStore is the lookup jobservice's Notifier needs to resolve a
// recipient for a Job's department. Satisfied by storage.Postgres.
type DepartmentStore interface {
	GetDepartment(ctx context.Context, tenantID, id string) (*models.Department, error)
}

// Dispatcher implements jobservice.Notifier by fanning a routing
// notification out across the requested channels. A recipient with no
// resolvable contact for a channel is skipped rather than failing the
// whole dispatch — one dead channel adapter shouldn't block the others
// or roll back the job creation that triggered it.
type Dispatcher struct {
	depts DepartmentStore
	sms   *smsChannel
	email *emailChannel
	log   *zap.Logger
}

// Config is the construction-time configuration, sourced from
// config.Config's AWS* / SES* fields.
type Config struct {
	AWS          aws.Config
	SESFromEmail string
}

func New(cfg Config, depts DepartmentStore, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		depts: depts,
		sms:   newSMSChannel(cfg.AWS),
		email: newEmailChannel(cfg.AWS, cfg.SESFromEmail),
		log:   log,
	}
}

// Notify implements jobservice.Notifier. It resolves the target
// department's fallback contact once, then dispatches through every
// requested channel able to use it (an email channel skips a phone
// number and vice versa).
func (d *Dispatcher) Notify(ctx context.Context, tenantID string, channels []string, job *models.Job, reason string) error {
	if len(channels) == 0 {
		return nil
	}
	contact := ""
	if d.depts != nil && job.DepartmentID != "" {
		dept, err := d.depts.GetDepartment(ctx, tenantID, job.DepartmentID)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "notify_department_lookup_failed", "looking up department for notification", err)
		}
		contact = dept.FallbackContact
	}
	if contact == "" {
		if d.log != nil {
			d.log.Warn("notification skipped: no fallback contact configured",
				zap.String("tenant_id", tenantID), zap.String("job_id", job.ID))
		}
		return nil
	}

	subject, body := renderMessage(job, reason)

	var errs []string
	for _, ch := range channels {
		switch strings.ToLower(ch) {
		case "sms":
			if !looksLikePhone(contact) {
				continue
			}
			if err := d.sms.send(ctx, contact, body); err != nil {
				errs = append(errs, fmt.Sprintf("sms: %v", err))
			}
		case "email":
			if !looksLikeEmail(contact) {
				continue
			}
			if err := d.email.send(ctx, contact, subject, body); err != nil {
				errs = append(errs, fmt.Sprintf("email: %v", err))
			}
		default:
			if d.log != nil {
				d.log.Warn("notify: unknown channel requested", zap.String("channel", ch))
			}
		}
	}
	if len(errs) > 0 {
		return apperr.New(apperr.ProviderTransient, "notify_dispatch_partial_failure", strings.Join(errs, "; "))
	}
	return nil
}

func renderMessage(job *models.Job, reason string) (subject, body string) {
	subject = fmt.Sprintf("[%s] Neuer Auftrag: %s", job.Urgency, job.JobNumber)
	body = fmt.Sprintf(
		"Auftrag %s (%s, %s) benötigt Aufmerksamkeit.\nGrund: %s\nAdresse: %s %s, %s %s\nBeschreibung: %s",
		job.JobNumber, job.TradeCategory, job.Urgency, reason,
		job.AddressSnapshot.Street, job.AddressSnapshot.Number, job.AddressSnapshot.PostalCode, job.AddressSnapshot.City,
		job.Description,
	)
	return subject, body
}

func looksLikePhone(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "+")
}

func looksLikeEmail(s string) bool {
	return strings.Contains(s, "@")
}

// smsChannel wraps AWS SNS the way auth-service/sms_service.go does.
type smsChannel struct {
	client *sns.Client
}

func newSMSChannel(cfg aws.Config) *smsChannel {
	return &smsChannel{client: sns.NewFromConfig(cfg)}
}

// send publishes a transactional SMS to an E.164 phone number.
func (c *smsChannel) send(ctx context.Context, phoneNumber, message string) error {
	input := &sns.PublishInput{
		Message:     aws.String(message),
		PhoneNumber: aws.String(phoneNumber),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	}
	if _, err := c.client.Publish(ctx, input); err != nil {
		return apperr.Wrap(apperr.ProviderTransient, "sns_publish_failed", "publishing SMS via SNS", err)
	}
	return nil
}

// emailChannel wraps AWS SESv2 the way auth-service/email_service.go
// does, minus the HTML-verification-code template — dispatch messages
// here are plain text.
type emailChannel struct {
	client    *sesv2.Client
	fromEmail string
}

func newEmailChannel(cfg aws.Config, fromEmail string) *emailChannel {
	return &emailChannel{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
	}
}

func (c *emailChannel) send(ctx context.Context, toEmail, subject, body string) error {
	if c.fromEmail == "" {
		return apperr.New(apperr.Internal, "ses_from_email_unset", "SES_FROM_EMAIL is not configured")
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.fromEmail),
		Destination:      &sestypes.Destination{ToAddresses: []string{toEmail}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject)},
				Body:    &sestypes.Body{Text: &sestypes.Content{Data: aws.String(body)}},
			},
		},
	}
	if _, err := c.client.SendEmail(ctx, input); err != nil {
		return apperr.Wrap(apperr.ProviderTransient, "ses_send_failed", "sending email via SESv2", err)
	}
	return nil
}
