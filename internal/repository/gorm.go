package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

// GormDB implements models.Repository on top of any gorm dialect.
type GormDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

var migratedModels = []interface{}{
	&models.AutoPaySettings{},
	&models.PeerSpendingLimit{},
	&models.AutoPayRule{},
	&models.SubscriptionProposal{},
	&models.SentProposal{},
	&models.Subscription{},
	&models.PaymentRequest{},
	&models.SentPaymentRequest{},
	&models.Contact{},
	&models.KeychainEntry{},
}

func newGormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	}
}

func openGorm(dialector gorm.Dialector, logger *logger.Logger) (*GormDB, error) {
	db, err := gorm.Open(dialector, newGormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(migratedModels...); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return &GormDB{Conn: db, logger: logger}, nil
}

func (db *GormDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}

func (db *GormDB) GetSettings(ctx context.Context) (*models.AutoPaySettings, error) {
	var settings models.AutoPaySettings
	if err := db.Conn.WithContext(ctx).Where("id = ?", models.SettingsID).First(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to get autopay settings: %w", notFound(err))
	}
	return &settings, nil
}

func (db *GormDB) SaveSettings(ctx context.Context, settings *models.AutoPaySettings) error {
	settings.ID = models.SettingsID
	if err := db.Conn.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("failed to save autopay settings: %w", err)
	}
	return nil
}

func (db *GormDB) GetPeerLimit(ctx context.Context, peerPubkey string) (*models.PeerSpendingLimit, error) {
	var limit models.PeerSpendingLimit
	if err := db.Conn.WithContext(ctx).Where("peer_pubkey = ?", peerPubkey).First(&limit).Error; err != nil {
		return nil, fmt.Errorf("failed to get peer limit: %w", notFound(err))
	}
	return &limit, nil
}

func (db *GormDB) SavePeerLimit(ctx context.Context, limit *models.PeerSpendingLimit) error {
	if err := db.Conn.WithContext(ctx).Save(limit).Error; err != nil {
		return fmt.Errorf("failed to save peer limit: %w", err)
	}
	return nil
}

func (db *GormDB) DeletePeerLimit(ctx context.Context, peerPubkey string) error {
	if err := db.Conn.WithContext(ctx).Where("peer_pubkey = ?", peerPubkey).Delete(&models.PeerSpendingLimit{}).Error; err != nil {
		return fmt.Errorf("failed to delete peer limit: %w", err)
	}
	return nil
}

func (db *GormDB) ListPeerLimits(ctx context.Context) ([]*models.PeerSpendingLimit, error) {
	var limits []*models.PeerSpendingLimit
	if err := db.Conn.WithContext(ctx).Order("peer_pubkey asc").Find(&limits).Error; err != nil {
		return nil, fmt.Errorf("failed to list peer limits: %w", err)
	}
	return limits, nil
}

func (db *GormDB) GetRule(ctx context.Context, id string) (*models.AutoPayRule, error) {
	var rule models.AutoPayRule
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, fmt.Errorf("failed to get autopay rule: %w", notFound(err))
	}
	return &rule, nil
}

func (db *GormDB) SaveRule(ctx context.Context, rule *models.AutoPayRule) error {
	if err := db.Conn.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("failed to save autopay rule: %w", err)
	}
	return nil
}

func (db *GormDB) DeleteRule(ctx context.Context, id string) error {
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).Delete(&models.AutoPayRule{}).Error; err != nil {
		return fmt.Errorf("failed to delete autopay rule: %w", err)
	}
	return nil
}

const ruleOrder = "priority asc, created_at asc, id asc"

func (db *GormDB) ListRules(ctx context.Context) ([]*models.AutoPayRule, error) {
	var rules []*models.AutoPayRule
	if err := db.Conn.WithContext(ctx).Order(ruleOrder).Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list autopay rules: %w", err)
	}
	return rules, nil
}

func (db *GormDB) GetMatchingRules(ctx context.Context, peerPubkey, methodID string, amount uint64) ([]*models.AutoPayRule, error) {
	var rules []*models.AutoPayRule
	if err := db.Conn.WithContext(ctx).
		Where("is_enabled = ? AND max_amount_sats >= ?", true, amount).
		Where("(peer_pubkey = ? OR peer_pubkey = ?)", "", peerPubkey).
		Order(ruleOrder).
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to get matching autopay rules: %w", err)
	}
	return rules, nil
}

func (db *GormDB) GetProposal(ctx context.Context, id string) (*models.SubscriptionProposal, error) {
	var proposal models.SubscriptionProposal
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&proposal).Error; err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", notFound(err))
	}
	return &proposal, nil
}

func (db *GormDB) SaveProposal(ctx context.Context, proposal *models.SubscriptionProposal) error {
	if err := db.Conn.WithContext(ctx).Save(proposal).Error; err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}
	return nil
}

func (db *GormDB) DeleteProposal(ctx context.Context, id string) error {
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).Delete(&models.SubscriptionProposal{}).Error; err != nil {
		return fmt.Errorf("failed to delete proposal: %w", err)
	}
	return nil
}

func (db *GormDB) ListProposals(ctx context.Context, status models.ProposalStatus) ([]*models.SubscriptionProposal, error) {
	var proposals []*models.SubscriptionProposal
	query := db.Conn.WithContext(ctx).Order("created_at asc, id asc")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&proposals).Error; err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return proposals, nil
}

func (db *GormDB) GetSentProposal(ctx context.Context, id string) (*models.SentProposal, error) {
	var sent models.SentProposal
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&sent).Error; err != nil {
		return nil, fmt.Errorf("failed to get sent proposal: %w", notFound(err))
	}
	return &sent, nil
}

func (db *GormDB) SaveSentProposal(ctx context.Context, sent *models.SentProposal) error {
	if err := db.Conn.WithContext(ctx).Save(sent).Error; err != nil {
		return fmt.Errorf("failed to save sent proposal: %w", err)
	}
	return nil
}

func (db *GormDB) DeleteSentProposal(ctx context.Context, id string) error {
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).Delete(&models.SentProposal{}).Error; err != nil {
		return fmt.Errorf("failed to delete sent proposal: %w", err)
	}
	return nil
}

func (db *GormDB) ListSentProposals(ctx context.Context) ([]*models.SentProposal, error) {
	var sent []*models.SentProposal
	if err := db.Conn.WithContext(ctx).Order("created_at asc, id asc").Find(&sent).Error; err != nil {
		return nil, fmt.Errorf("failed to list sent proposals: %w", err)
	}
	return sent, nil
}

func (db *GormDB) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&subscription).Error; err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", notFound(err))
	}
	return &subscription, nil
}

func (db *GormDB) SaveSubscription(ctx context.Context, subscription *models.Subscription) error {
	if err := db.Conn.WithContext(ctx).Save(subscription).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (db *GormDB) DeleteSubscription(ctx context.Context, id string) error {
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).Delete(&models.Subscription{}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (db *GormDB) ListSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	var subscriptions []*models.Subscription
	if err := db.Conn.WithContext(ctx).Order("created_at asc, id asc").Find(&subscriptions).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subscriptions, nil
}

func (db *GormDB) GetPaymentRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	var request models.PaymentRequest
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", notFound(err))
	}
	return &request, nil
}

func (db *GormDB) SavePaymentRequest(ctx context.Context, request *models.PaymentRequest) error {
	if err := db.Conn.WithContext(ctx).Save(request).Error; err != nil {
		return fmt.Errorf("failed to save payment request: %w", err)
	}
	return nil
}

func (db *GormDB) DeletePaymentRequest(ctx context.Context, id string) error {
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).Delete(&models.PaymentRequest{}).Error; err != nil {
		return fmt.Errorf("failed to delete payment request: %w", err)
	}
	return nil
}

func (db *GormDB) ListPaymentRequests(ctx context.Context, direction models.Direction) ([]*models.PaymentRequest, error) {
	var requests []*models.PaymentRequest
	query := db.Conn.WithContext(ctx).Order("created_at asc, id asc")
	if direction != "" {
		query = query.Where("direction = ?", direction)
	}
	if err := query.Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	return requests, nil
}

func (db *GormDB) GetSentPaymentRequest(ctx context.Context, id string) (*models.SentPaymentRequest, error) {
	var sent models.SentPaymentRequest
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&sent).Error; err != nil {
		return nil, fmt.Errorf("failed to get sent payment request: %w", notFound(err))
	}
	return &sent, nil
}

func (db *GormDB) SaveSentPaymentRequest(ctx context.Context, sent *models.SentPaymentRequest) error {
	if err := db.Conn.WithContext(ctx).Save(sent).Error; err != nil {
		return fmt.Errorf("failed to save sent payment request: %w", err)
	}
	return nil
}

func (db *GormDB) DeleteSentPaymentRequest(ctx context.Context, id string) error {
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).Delete(&models.SentPaymentRequest{}).Error; err != nil {
		return fmt.Errorf("failed to delete sent payment request: %w", err)
	}
	return nil
}

func (db *GormDB) ListSentPaymentRequests(ctx context.Context) ([]*models.SentPaymentRequest, error) {
	var sent []*models.SentPaymentRequest
	if err := db.Conn.WithContext(ctx).Order("created_at asc, id asc").Find(&sent).Error; err != nil {
		return nil, fmt.Errorf("failed to list sent payment requests: %w", err)
	}
	return sent, nil
}

func (db *GormDB) SaveContact(ctx context.Context, contact *models.Contact) error {
	if err := db.Conn.WithContext(ctx).Save(contact).Error; err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}

func (db *GormDB) DeleteContact(ctx context.Context, pubkey string) error {
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("pubkey = ?", pubkey).Delete(&models.Contact{}).Error; err != nil {
			return err
		}
		return tx.Where("peer_pubkey = ?", pubkey).Delete(&models.PeerSpendingLimit{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	return nil
}

func (db *GormDB) ListContacts(ctx context.Context) ([]*models.Contact, error) {
	var contacts []*models.Contact
	if err := db.Conn.WithContext(ctx).Order("created_at asc, pubkey asc").Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

func (db *GormDB) GetKey(ctx context.Context, name string) (string, error) {
	var entry models.KeychainEntry
	if err := db.Conn.WithContext(ctx).Where("name = ?", name).First(&entry).Error; err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", name, notFound(err))
	}
	return entry.Value, nil
}

func (db *GormDB) SaveKey(ctx context.Context, name, value string) error {
	entry := &models.KeychainEntry{Name: name, Value: value, UpdatedAt: time.Now().UTC()}
	if err := db.Conn.WithContext(ctx).Save(entry).Error; err != nil {
		return fmt.Errorf("failed to save key %s: %w", name, err)
	}
	return nil
}
