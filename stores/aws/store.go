package aws

import (
	"bytes"
	"cardstudio/core"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// ObjectAPI is the subset of the S3 client the store needs.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Store keeps one JSON object per record under designs/, invitations/
// and organizations/. Invitation writes are serialized in process only,
// so a bucket must not be shared by several instances.
type s3Store struct {
	client ObjectAPI
	bucket string
	mu     sync.Mutex
}

type (
	designObject struct {
		UserID string `json:"userId"`
		*core.Design
	}
	invitationObject struct {
		OwnerID string `json:"ownerId"`
		*core.Invitation
	}
	organizationObject struct {
		OwnerID string `json:"ownerId"`
		*core.Organization
	}
)

// NewStore creates a new S3-based store using the default AWS configuration.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	return NewStoreWithClient(s3.NewFromConfig(cfg), bucketName)
}

func NewStoreWithClient(client ObjectAPI, bucketName string) *s3Store {
	return &s3Store{client: client, bucket: bucketName}
}

// key joins elements into an object key. Each element must be a plain
// name, not a path.
func key(elems ...string) (string, error) {
	for _, e := range elems {
		if e == "" || e == "." || e == ".." || path.Base(e) != e || strings.Contains(e, `\`) {
			return "", fmt.Errorf("invalid key element %q: must not be a path", e)
		}
	}
	return path.Join(elems...), nil
}

func (s *s3Store) getJSON(ctx context.Context, objectKey string, v any) error {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return core.ErrNotFound
		}
		return fmt.Errorf("failed to get object %s: %w", objectKey, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %w", objectKey, err)
	}
	return json.Unmarshal(data, v)
}

func (s *s3Store) putJSON(ctx context.Context, objectKey string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", objectKey, err)
	}
	return nil
}

func (s *s3Store) exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err == nil {
		return true, nil
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, err
}

func (s *s3Store) delete(ctx context.Context, objectKey string) error {
	found, err := s.exists(ctx, objectKey)
	if err != nil {
		return err
	}
	if !found {
		return core.ErrNotFound
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	return err
}

// keys lists every object key under prefix.
func (s *s3Store) keys(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, object := range page.Contents {
			keys = append(keys, aws.ToString(object.Key))
		}
	}
	return keys, nil
}

func (s *s3Store) List(ctx context.Context, userID string) ([]*core.Design, error) {
	prefix, err := key("designs", userID)
	if err != nil {
		return nil, err
	}
	keys, err := s.keys(ctx, prefix+"/")
	if err != nil {
		return nil, err
	}

	designs := make([]*core.Design, 0, len(keys))
	for _, k := range keys {
		obj := designObject{Design: &core.Design{}}
		if err := s.getJSON(ctx, k, &obj); err != nil {
			logrus.WithField("key", k).WithError(err).Warn("Failed to read design object, skipping")
			continue
		}
		obj.Design.UserID = obj.UserID
		obj.Design.Items = nil
		obj.Design.SelectedID = nil
		designs = append(designs, obj.Design)
	}
	sort.Slice(designs, func(i, j int) bool { return designs[i].UpdatedAt.After(designs[j].UpdatedAt) })
	return designs, nil
}

func (s *s3Store) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	k, err := key("designs", userID, id+".json")
	if err != nil {
		return nil, err
	}
	obj := designObject{Design: &core.Design{}}
	if err := s.getJSON(ctx, k, &obj); err != nil {
		return nil, fmt.Errorf("design %s for user %s: %w", id, userID, err)
	}
	obj.Design.UserID = obj.UserID
	return obj.Design, nil
}

func (s *s3Store) Save(ctx context.Context, d *core.Design) error {
	if d.UserID == "" || d.ID == "" {
		return fmt.Errorf("design user and ID cannot be empty")
	}
	k, err := key("designs", d.UserID, d.ID+".json")
	if err != nil {
		return err
	}

	now := time.Now()
	existing := designObject{Design: &core.Design{}}
	if err := s.getJSON(ctx, k, &existing); err == nil {
		d.CreatedAt = existing.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	if err := s.putJSON(ctx, k, designObject{UserID: d.UserID, Design: d}); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": d.UserID, "design_id": d.ID}).WithError(err).Error("Failed to save design")
		return err
	}
	return nil
}

func (s *s3Store) Delete(ctx context.Context, userID, id string) error {
	k, err := key("designs", userID, id+".json")
	if err != nil {
		return err
	}
	if err := s.delete(ctx, k); err != nil {
		return fmt.Errorf("design %s for user %s: %w", id, userID, err)
	}
	return nil
}

func (s *s3Store) CreateInvitation(ctx context.Context, inv *core.Invitation) error {
	k, err := key("invitations", inv.Token+".json")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.exists(ctx, k)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("invitation %s: %w", inv.Token, core.ErrConflict)
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	return s.putJSON(ctx, k, invitationObject{OwnerID: inv.OwnerID, Invitation: inv})
}

func (s *s3Store) readInvitation(ctx context.Context, objectKey string) (*core.Invitation, error) {
	obj := invitationObject{Invitation: &core.Invitation{}}
	if err := s.getJSON(ctx, objectKey, &obj); err != nil {
		return nil, err
	}
	obj.Invitation.OwnerID = obj.OwnerID
	return obj.Invitation, nil
}

func (s *s3Store) FindInvitation(ctx context.Context, token string) (*core.Invitation, error) {
	k, err := key("invitations", token+".json")
	if err != nil {
		return nil, err
	}
	inv, err := s.readInvitation(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("invitation %s: %w", token, err)
	}
	return inv, nil
}

func (s *s3Store) MarkViewed(ctx context.Context, token string, at time.Time) (*core.Invitation, error) {
	k, err := key("invitations", token+".json")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, err := s.readInvitation(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("invitation %s: %w", token, err)
	}
	if inv.ViewedAt != nil {
		return inv, nil
	}
	inv.ViewedAt = &at
	if err := s.putJSON(ctx, k, invitationObject{OwnerID: inv.OwnerID, Invitation: inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *s3Store) ListInvitations(ctx context.Context, ownerID string) ([]*core.Invitation, error) {
	keys, err := s.keys(ctx, "invitations/")
	if err != nil {
		return nil, err
	}

	invitations := make([]*core.Invitation, 0)
	for _, k := range keys {
		inv, err := s.readInvitation(ctx, k)
		if err != nil {
			logrus.WithField("key", k).WithError(err).Warn("Failed to read invitation object, skipping")
			continue
		}
		if inv.OwnerID == ownerID {
			invitations = append(invitations, inv)
		}
	}
	sort.Slice(invitations, func(i, j int) bool { return invitations[i].CreatedAt.After(invitations[j].CreatedAt) })
	return invitations, nil
}

func (s *s3Store) ListOrganizations(ctx context.Context, ownerID string) ([]*core.Organization, error) {
	prefix, err := key("organizations", ownerID)
	if err != nil {
		return nil, err
	}
	keys, err := s.keys(ctx, prefix+"/")
	if err != nil {
		return nil, err
	}

	orgs := make([]*core.Organization, 0, len(keys))
	for _, k := range keys {
		obj := organizationObject{Organization: &core.Organization{}}
		if err := s.getJSON(ctx, k, &obj); err != nil {
			logrus.WithField("key", k).WithError(err).Warn("Failed to read organization object, skipping")
			continue
		}
		obj.Organization.OwnerID = obj.OwnerID
		orgs = append(orgs, obj.Organization)
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}

func (s *s3Store) GetOrganization(ctx context.Context, ownerID, id string) (*core.Organization, error) {
	k, err := key("organizations", ownerID, id+".json")
	if err != nil {
		return nil, err
	}
	obj := organizationObject{Organization: &core.Organization{}}
	if err := s.getJSON(ctx, k, &obj); err != nil {
		return nil, fmt.Errorf("organization %s for user %s: %w", id, ownerID, err)
	}
	obj.Organization.OwnerID = obj.OwnerID
	return obj.Organization, nil
}

func (s *s3Store) SaveOrganization(ctx context.Context, org *core.Organization) error {
	if org.OwnerID == "" || org.ID == "" {
		return fmt.Errorf("organization owner and ID cannot be empty")
	}
	k, err := key("organizations", org.OwnerID, org.ID+".json")
	if err != nil {
		return err
	}

	now := time.Now()
	existing := organizationObject{Organization: &core.Organization{}}
	if err := s.getJSON(ctx, k, &existing); err == nil {
		org.CreatedAt = existing.CreatedAt
	} else {
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	return s.putJSON(ctx, k, organizationObject{OwnerID: org.OwnerID, Organization: org})
}

func (s *s3Store) DeleteOrganization(ctx context.Context, ownerID, id string) error {
	k, err := key("organizations", ownerID, id+".json")
	if err != nil {
		return err
	}
	if err := s.delete(ctx, k); err != nil {
		return fmt.Errorf("organization %s for user %s: %w", id, ownerID, err)
	}
	return nil
}
