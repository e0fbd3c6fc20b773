// Package documents delivers per-service documents (aftercare sheets,
// consent forms) as presigned S3 links over WhatsApp.
package documents

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/booking-crm/internal/booking"
	"github.com/wolfman30/booking-crm/internal/reminders"
	"github.com/wolfman30/booking-crm/pkg/logging"
)

// S3Lister is the subset of the S3 client used to find a service's documents.
type S3Lister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner signs GET requests for document objects.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type messageInserter interface {
	Insert(ctx context.Context, msgs []reminders.Message) error
}

// Link is a presigned document URL.
type Link struct {
	Name string
	URL  string
}

// Scheduler implements booking.DocumentScheduler.
type Scheduler struct {
	bucket    string
	lister    S3Lister
	presigner Presigner
	messages  messageInserter
	ttl       time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

var _ booking.DocumentScheduler = (*Scheduler)(nil)

// NewScheduler creates a Scheduler. With an empty bucket every call is a no-op.
func NewScheduler(bucket string, lister S3Lister, presigner Presigner, messages *reminders.Store, ttl time.Duration, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	s := &Scheduler{
		bucket:    strings.TrimSpace(bucket),
		lister:    lister,
		presigner: presigner,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
	if messages != nil {
		s.messages = messages
	}
	return s
}

// Enabled returns true if a bucket and clients are configured.
func (s *Scheduler) Enabled() bool {
	return s != nil && s.bucket != "" && s.lister != nil && s.presigner != nil && s.messages != nil
}

func servicePrefix(serviceID string) string {
	return "services/" + serviceID + "/"
}

// ScheduleForBooking queues one WhatsApp message with links to every
// document of the booked service. Bookings without a service, contacts
// without a phone and services without documents are no-ops.
func (s *Scheduler) ScheduleForBooking(ctx context.Context, appt booking.Appointment) error {
	if !s.Enabled() || appt.ServiceID == nil || appt.ContactPhone == "" {
		return nil
	}
	links, err := s.Links(ctx, appt.ServiceID.String())
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	msg := reminders.Message{
		BookingID: appt.BookingID,
		ContactID: appt.ContactID,
		Kind:      reminders.KindDocument,
		Phone:     appt.ContactPhone,
		Body:      documentMessage(appt, links, s.ttl),
		SendAt:    s.now(),
	}
	if err := s.messages.Insert(ctx, []reminders.Message{msg}); err != nil {
		return fmt.Errorf("documents: enqueue message: %w", err)
	}
	s.logger.Info("documents scheduled", "booking_id", appt.BookingID, "service_id", appt.ServiceID, "count", len(links))
	return nil
}

// Links presigns every object stored under the service's prefix.
func (s *Scheduler) Links(ctx context.Context, serviceID string) ([]Link, error) {
	prefix := servicePrefix(serviceID)
	var links []Link
	var token *string
	for {
		out, err := s.lister.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("documents: list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			}, s3.WithPresignExpires(s.ttl))
			if err != nil {
				return nil, fmt.Errorf("documents: presign %s: %w", key, err)
			}
			links = append(links, Link{Name: path.Base(key), URL: req.URL})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return links, nil
}

func documentMessage(appt booking.Appointment, links []Link, ttl time.Duration) string {
	var sb strings.Builder
	label := appt.ServiceName
	if label == "" {
		label = "your appointment"
	}
	fmt.Fprintf(&sb, "Documents for %s:\n", label)
	for _, l := range links {
		fmt.Fprintf(&sb, "- %s: %s\n", l.Name, l.URL)
	}
	fmt.Fprintf(&sb, "Links expire in %d hours.", int(ttl.Hours()))
	return sb.String()
}
