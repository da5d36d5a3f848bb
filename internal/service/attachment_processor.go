package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vipul43/invy-worker/internal/extraction"
	"github.com/vipul43/invy-worker/internal/models"
)

// Outcome is how a forwarded attachment was resolved
type Outcome int

const (
	OutcomeRejected Outcome = iota // not an invoice
	OutcomeInvoiceInserted
	OutcomeInvoiceUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeInvoiceInserted:
		return "inserted"
	case OutcomeInvoiceUpdated:
		return "updated"
	}
	return "unknown(" + strconv.Itoa(int(o)) + ")"
}

// AttachmentJob is one PDF of one message of one account
type AttachmentJob struct {
	Account     models.Account
	AccessToken string
	Message     *MailMessage
	Attachment  AttachmentRef
}

// AttachmentProcessor downloads a PDF, optionally keeps a copy in storage, forwards it
// for extraction and stores the resulting invoice
type AttachmentProcessor struct {
	mail      MailClient
	storage   FileStorage // nil disables uploads
	extractor Extractor
	upserter  *InvoiceUpserter
	now       func() time.Time
}

func NewAttachmentProcessor(mail MailClient, storage FileStorage, extractor Extractor, upserter *InvoiceUpserter) *AttachmentProcessor {
	return &AttachmentProcessor{
		mail:      mail,
		storage:   storage,
		extractor: extractor,
		upserter:  upserter,
		now:       time.Now,
	}
}

// Process resolves one attachment. A nil error means it is resolved for good and the
// message may be marked processed once its siblings are too. Any error leaves it for the
// next sweep.
func (p *AttachmentProcessor) Process(ctx context.Context, job AttachmentJob) (Outcome, error) {
	logger := log.WithFields(log.Fields{
		"account":    job.Account.ID,
		"message_id": job.Message.ID,
		"attachment": job.Attachment.Filename,
	})

	data, err := p.mail.GetAttachment(ctx, job.AccessToken, job.Message.ID, job.Attachment.AttachmentID)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("failed to download attachment: %w", err)
	}

	stored := p.store(ctx, job, data, logger)

	mimeType := job.Attachment.MimeType
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	size := job.Attachment.Size
	if size == 0 {
		size = int64(len(data))
	}

	req := extraction.Request{
		Sender:              job.Message.From,
		Subject:             job.Message.Subject,
		Date:                job.Message.SentAt(),
		MessageID:           job.Message.ID,
		AttachmentName:      job.Attachment.Filename,
		AttachmentSize:      size,
		AttachmentMimeType:  mimeType,
		AttachmentData:      data,
		OwnerMailboxAddress: job.Account.MailboxAddress,
	}
	if stored != nil {
		req.StorageLink = stored.Link
	}

	verdict, err := p.extractor.Extract(ctx, req)
	if err != nil {
		p.discard(ctx, job, stored, logger)
		return OutcomeRejected, fmt.Errorf("extraction failed: %w", err)
	}

	if !verdict.Accepted || verdict.Result == nil {
		logger.Info("Not an invoice")
		p.discard(ctx, job, stored, logger)
		return OutcomeRejected, nil
	}

	src := Source{
		OwnerID:        job.Account.OwnerID,
		MailboxAddress: job.Account.MailboxAddress,
		From:           job.Message.From,
		Subject:        job.Message.Subject,
	}
	if stored != nil {
		src.StorageLink = stored.Link
	}

	inserted, err := p.upserter.Apply(ctx, src, *verdict.Result)
	if err != nil {
		p.discard(ctx, job, stored, logger)
		return OutcomeRejected, err
	}
	if inserted {
		return OutcomeInvoiceInserted, nil
	}
	return OutcomeInvoiceUpdated, nil
}

// store uploads the attachment under <mailbox>/<year>/invoices. Failures are logged only.
func (p *AttachmentProcessor) store(ctx context.Context, job AttachmentJob, data []byte, logger *log.Entry) *StoredFile {
	if p.storage == nil {
		return nil
	}

	folderID, err := p.storage.EnsureFolder(ctx, job.AccessToken, InvoiceFolderPath(job.Account.MailboxAddress, p.now()))
	if err != nil {
		logger.Warnf("Could not prepare storage folder, forwarding without a link: %v", err)
		return nil
	}

	stored, err := p.storage.Upload(ctx, job.AccessToken, folderID, job.Attachment.Filename, "application/pdf", data)
	if err != nil {
		logger.Warnf("Upload failed, forwarding without a link: %v", err)
		return nil
	}

	logger.WithField("file_id", stored.ID).Debug("Attachment uploaded")
	return stored
}

// discard removes an uploaded copy that will not back an invoice
func (p *AttachmentProcessor) discard(ctx context.Context, job AttachmentJob, stored *StoredFile, logger *log.Entry) {
	if p.storage == nil || stored == nil {
		return
	}
	if err := p.storage.Delete(ctx, job.AccessToken, stored.ID); err != nil {
		logger.Warnf("Failed to delete uploaded file %s: %v", stored.ID, err)
	}
}

// InvoiceFolderPath is the storage folder for a mailbox's invoices of the given year
func InvoiceFolderPath(mailboxAddress string, at time.Time) []string {
	return []string{mailboxAddress, strconv.Itoa(at.Year()), "invoices"}
}
