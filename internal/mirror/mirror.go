// Package mirror publishes organizations and alerts into Firestore for mobile
// clients that still read the document database directly.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/hugh/chimeo/internal/database/models"
	"google.golang.org/api/option"
)

const (
	organizationsCol = "organizations"
	alertsCol        = "alerts"
)

type Mirror interface {
	PublishOrganization(ctx context.Context, org *models.Organization) error
	PublishAlert(ctx context.Context, alert *models.OrganizationAlert) error
	RemoveAlert(ctx context.Context, orgID, alertID string) error
}

// Noop is used when no Firestore project is configured.
type Noop struct{}

func (Noop) PublishOrganization(context.Context, *models.Organization) error { return nil }
func (Noop) PublishAlert(context.Context, *models.OrganizationAlert) error   { return nil }
func (Noop) RemoveAlert(context.Context, string, string) error               { return nil }

type orgDoc struct {
	Name          string          `firestore:"name"`
	Type          string          `firestore:"type"`
	Description   string          `firestore:"description"`
	Verified      bool            `firestore:"verified"`
	FollowerCount int64           `firestore:"followerCount"`
	AlertCount    int64           `firestore:"alertCount"`
	LogoURL       string          `firestore:"logoURL"`
	AdminIDs      map[string]bool `firestore:"adminIds"`
	Latitude      float64         `firestore:"latitude"`
	Longitude     float64         `firestore:"longitude"`
	City          string          `firestore:"city"`
	State         string          `firestore:"state"`
	Zip           string          `firestore:"zip"`
	UpdatedAt     time.Time       `firestore:"updatedAt"`
}

type alertDoc struct {
	Title            string    `firestore:"title"`
	Description      string    `firestore:"description"`
	OrganizationID   string    `firestore:"organizationId"`
	OrganizationName string    `firestore:"organizationName"`
	GroupID          string    `firestore:"groupId,omitempty"`
	GroupName        string    `firestore:"groupName,omitempty"`
	Type             string    `firestore:"type"`
	Severity         string    `firestore:"severity"`
	PostedBy         string    `firestore:"postedBy"`
	PostedAt         time.Time `firestore:"postedAt"`
	ExpiresAt        time.Time `firestore:"expiresAt"`
	ImageURLs        []string  `firestore:"imageURLs"`
	Latitude         float64   `firestore:"latitude"`
	Longitude        float64   `firestore:"longitude"`
}

func toOrgDoc(org *models.Organization) orgDoc {
	return orgDoc{
		Name:          org.Name,
		Type:          string(org.Type),
		Description:   org.Description,
		Verified:      org.Verified,
		FollowerCount: org.FollowerCount,
		AlertCount:    org.AlertCount,
		LogoURL:       org.LogoURL,
		AdminIDs:      org.AdminIDs,
		Latitude:      org.Location.Latitude,
		Longitude:     org.Location.Longitude,
		City:          org.Location.City,
		State:         org.Location.State,
		Zip:           org.Location.Zip,
		UpdatedAt:     org.UpdatedAt,
	}
}

func toAlertDoc(a *models.OrganizationAlert) alertDoc {
	doc := alertDoc{
		Title:            a.Title,
		Description:      a.Description,
		OrganizationID:   a.OrganizationID,
		OrganizationName: a.OrganizationName,
		GroupName:        a.GroupName,
		Type:             a.Type,
		Severity:         string(a.Severity),
		PostedBy:         a.PostedBy,
		PostedAt:         a.PostedAt,
		ExpiresAt:        a.ExpiresAt,
		ImageURLs:        a.ImageURLs,
		Latitude:         a.Location.Latitude,
		Longitude:        a.Location.Longitude,
	}
	if a.IsGroupScoped() {
		doc.GroupID = a.GroupID.String()
	}
	return doc
}

// Firestore writes documents under organizations/{id} and
// organizations/{id}/alerts/{alertID}.
type Firestore struct {
	client *firestore.Client
	logger *slog.Logger
}

func NewFirestore(ctx context.Context, projectID string, logger *slog.Logger, opts ...option.ClientOption) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Firestore{client: client, logger: logger}, nil
}

func (f *Firestore) PublishOrganization(ctx context.Context, org *models.Organization) error {
	_, err := f.client.Collection(organizationsCol).Doc(org.ID).Set(ctx, toOrgDoc(org))
	if err != nil {
		return fmt.Errorf("mirroring organization %s: %w", org.ID, err)
	}
	return nil
}

// PublishAlert writes the alert and bumps the parent's alertCount in one
// transaction so both documents change together.
func (f *Firestore) PublishAlert(ctx context.Context, alert *models.OrganizationAlert) error {
	orgRef := f.client.Collection(organizationsCol).Doc(alert.OrganizationID)
	alertRef := orgRef.Collection(alertsCol).Doc(alert.ID.String())

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(alertRef, toAlertDoc(alert)); err != nil {
			return err
		}
		return tx.Set(orgRef, map[string]interface{}{
			"alertCount": firestore.Increment(1),
			"updatedAt":  firestore.ServerTimestamp,
		}, firestore.MergeAll)
	})
	if err != nil {
		return fmt.Errorf("mirroring alert %s: %w", alert.ID, err)
	}
	return nil
}

func (f *Firestore) RemoveAlert(ctx context.Context, orgID, alertID string) error {
	_, err := f.client.Collection(organizationsCol).Doc(orgID).Collection(alertsCol).Doc(alertID).Delete(ctx)
	if err != nil {
		return fmt.Errorf("removing mirrored alert %s: %w", alertID, err)
	}
	return nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}
