// Package billing integrates Stripe subscriptions for the pro plan.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"changespage/api/internal/store"
	"changespage/api/internal/util"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SubscriptionStore persists the local mirror of Stripe state.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub store.Subscription) error
	GetSubscriptionByUser(ctx context.Context, userID string) (store.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, stripeSubID, status string, periodEnd *time.Time) error
}

// Config holds Stripe credentials and product settings.
type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	SuccessURL    string
	CancelURL     string
}

// Service wraps the Stripe API for checkout, portal, and webhooks.
type Service struct {
	config Config
	store  SubscriptionStore
}

// NewService configures the Stripe client.
func NewService(config Config, store SubscriptionStore) *Service {
	stripe.Key = config.SecretKey
	return &Service{config: config, store: store}
}

// IsConfigured reports whether Stripe credentials are present.
func (s *Service) IsConfigured() bool {
	return s.config.SecretKey != "" && s.config.PriceID != ""
}

// CreateCheckoutSession starts a subscription checkout for a user and
// returns the hosted checkout URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID, email string) (string, error) {
	if !s.IsConfigured() {
		return "", fmt.Errorf("billing not configured")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail: stripe.String(email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.config.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.config.SuccessURL),
		CancelURL:         stripe.String(s.config.CancelURL),
		ClientReferenceID: stripe.String(userID),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession opens the Stripe billing portal for an existing
// customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID, returnURL string) (string, error) {
	sub, err := s.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("lookup subscription: %w", err)
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(sub.StripeCustomerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

// HandleWebhook verifies a Stripe webhook and syncs the local mirror.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.config.WebhookSecret)
	if err != nil {
		return fmt.Errorf("verify stripe signature: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.recordCheckout(ctx, sess)

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		var periodEnd *time.Time
		if sub.Items != nil {
			for _, item := range sub.Items.Data {
				if item.CurrentPeriodEnd > 0 {
					end := time.Unix(item.CurrentPeriodEnd, 0)
					periodEnd = &end
				}
			}
		}
		if err := s.store.UpdateSubscriptionStatus(ctx, sub.ID, string(sub.Status), periodEnd); err != nil {
			return fmt.Errorf("update subscription status: %w", err)
		}
		return nil

	default:
		log.Printf("billing: ignoring webhook event %s", event.Type)
		return nil
	}
}

func (s *Service) recordCheckout(ctx context.Context, sess stripe.CheckoutSession) error {
	userID := sess.ClientReferenceID
	if userID == "" {
		return fmt.Errorf("checkout session missing client reference")
	}

	var customerID, subID string
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		subID = sess.Subscription.ID
	}

	sub := store.Subscription{
		ID:               util.NewID("sub"),
		UserID:           userID,
		StripeCustomerID: customerID,
		StripeSubID:      subID,
		Status:           "active",
		PriceID:          s.config.PriceID,
	}
	if sess.Subscription != nil && sess.Subscription.Items != nil {
		for _, item := range sess.Subscription.Items.Data {
			if item.CurrentPeriodEnd > 0 {
				end := time.Unix(item.CurrentPeriodEnd, 0)
				sub.CurrentPeriodEnd = &end
			}
		}
	}

	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("record subscription: %w", err)
	}
	return nil
}

// HasActiveSubscription reports whether a user is on the pro plan.
func (s *Service) HasActiveSubscription(ctx context.Context, userID string) bool {
	sub, err := s.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return false
	}
	return sub.Status == "active" || sub.Status == "past_due"
}
