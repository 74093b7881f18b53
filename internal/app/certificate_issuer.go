package app

import (
	"context"

	"dbkompare-functions/internal/certificate"
	"dbkompare-functions/internal/domain"
)

const pdfContentType = "application/pdf"

// IssuerOptions locates the template and names the rendered documents.
type IssuerOptions struct {
	TemplateKey   string
	Prefix        string
	VerifyBaseURL string
}

// CertificateIssuer renders certificate documents and places them in object storage.
type CertificateIssuer struct {
	storage  ObjectStorage
	renderer Renderer
	opts     IssuerOptions
	newID    func() string
}

func NewCertificateIssuer(storage ObjectStorage, renderer Renderer, opts IssuerOptions) *CertificateIssuer {
	return &CertificateIssuer{
		storage:  storage,
		renderer: renderer,
		opts:     opts,
		newID:    certificate.NewID,
	}
}

// WithIDGenerator replaces the certificate id source; used by tests.
func (c *CertificateIssuer) WithIDGenerator(gen func() string) *CertificateIssuer {
	c.newID = gen
	return c
}

// NewID returns a fresh certificate id.
func (c *CertificateIssuer) NewID() string {
	return c.newID()
}

// Document is one certificate to render.
type Document struct {
	CertificateID  string
	UserID         string
	SubmissionID   string
	RecipientName  string
	CompletionText string
	Highlight      string
}

// Publish renders doc over the template and stores it, returning the object URI.
func (c *CertificateIssuer) Publish(ctx context.Context, doc Document) (string, error) {
	template, err := c.storage.Fetch(ctx, c.opts.TemplateKey)
	if err != nil {
		return "", storeError(err, "Failed to load certificate template")
	}

	name := doc.RecipientName
	if name == "" {
		name = "User"
	}
	pdf, err := c.renderer.Render(template, certificate.Fields{
		CertificateID:  doc.CertificateID,
		RecipientName:  name,
		VerifyURL:      c.opts.VerifyBaseURL + doc.CertificateID,
		CompletionText: doc.CompletionText,
		Highlight:      doc.Highlight,
	})
	if err != nil {
		return "", domain.Upstream(err, "Failed to render certificate")
	}

	uri, err := c.storage.Store(ctx, c.key(doc.CertificateID, doc.UserID, doc.SubmissionID), pdf, pdfContentType)
	if err != nil {
		return "", storeError(err, "Failed to store certificate")
	}
	return uri, nil
}

// Location returns the URI a previously published certificate was stored under.
func (c *CertificateIssuer) Location(certificateID, userID, submissionID string) string {
	return c.storage.URI(c.key(certificateID, userID, submissionID))
}

func (c *CertificateIssuer) key(certificateID, userID, submissionID string) string {
	return certificate.ObjectKey(c.opts.Prefix, certificateID, userID, submissionID)
}
