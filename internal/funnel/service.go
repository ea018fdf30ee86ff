// Package funnel owns the chat billing-state lifecycle: session creation at
// match time, the free-message window, the free→paid transition, and the
// paid path through the wallet and token router.
package funnel

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tokenchat/backend/internal/config"
	"tokenchat/backend/internal/models"
	"tokenchat/backend/internal/policy"
	"tokenchat/backend/internal/promo"
	"tokenchat/backend/internal/roles"
	"tokenchat/backend/internal/router"
	"tokenchat/backend/internal/storage"
	"tokenchat/backend/internal/wallet"

	"github.com/google/uuid"
)

var (
	// ErrChatNotFound means the chat was never initialized; a data-integrity
	// error upstream, fatal for the calling request.
	ErrChatNotFound = errors.New("chat not found")
	// ErrNotParticipant means the sender does not belong to the chat.
	ErrNotParticipant = errors.New("sender is not a chat participant")
	// ErrMissingMessageKey means the caller did not supply an idempotency key.
	ErrMissingMessageKey = errors.New("message idempotency key is required")
	// ErrProfileNotFound means a matched participant has no stored profile.
	ErrProfileNotFound = errors.New("participant profile not found")
)

// ReasonAwaitingOtherParty marks a send rejected because the sender's own
// free quota is exhausted while the other side still has free messages left.
// Callers present it as "wait for the other side", not as a paywall.
const ReasonAwaitingOtherParty = "own_free_quota_exhausted_awaiting_other_party"

// ReasonInsufficientFunds marks a paid send rejected for lack of balance.
const ReasonInsufficientFunds = "insufficient_funds"

// Result is the typed outcome of processing one message. Quota exhaustion and
// missing funds are normal control flow carried here, never error values.
type Result struct {
	Allowed         bool   `json:"allowed"`
	Billed          bool   `json:"billed"`
	RequiresDeposit bool   `json:"requires_deposit"`
	Reason          string `json:"reason,omitempty"`
}

// Notifier publishes quota events. Delivery is fire-and-forget: a publish
// failure is logged and never blocks or fails message processing.
type Notifier interface {
	PublishQuotaEvent(ev models.QuotaEvent) error
}

// PromotionGate is the eligibility decision consumed at session creation.
type PromotionGate interface {
	Check(ctx context.Context, chatID, earnerID, region string, m promo.Metrics) (bool, error)
	Abandon(ctx context.Context, chatID string)
}

// Service is the chat funnel state machine.
type Service struct {
	Storage  storage.Storage
	Wallet   wallet.Ledger
	Router   *router.Router
	Gate     PromotionGate
	Notifier Notifier
	Cfg      config.PolicyConfig
}

// NewService wires the funnel over its collaborators.
func NewService(s storage.Storage, ledger wallet.Ledger, gate PromotionGate, notifier Notifier, cfg config.PolicyConfig) *Service {
	return &Service{
		Storage:  s,
		Wallet:   ledger,
		Router:   router.NewRouter(s, ledger, cfg.EarnerShareBps),
		Gate:     gate,
		Notifier: notifier,
		Cfg:      cfg,
	}
}

// InitSession handles a "match created" event: it resolves roles from the two
// participants' profile snapshots, runs the promotion gate for a low-tier
// earner, computes the free window, and creates the session. Exactly one
// session exists per matched pair; a repeated event returns the existing
// session untouched.
func (s *Service) InitSession(ctx context.Context, participantA, participantB string) (*models.ChatSession, error) {
	pa, pb := models.OrderPair(participantA, participantB)

	profA, err := s.Storage.GetProfile(pa)
	if err != nil {
		return nil, err
	}
	profB, err := s.Storage.GetProfile(pb)
	if err != nil {
		return nil, err
	}
	if profA == nil || profB == nil {
		return nil, fmt.Errorf("%w: pair (%s, %s)", ErrProfileNotFound, pa, pb)
	}

	res := roles.Resolve(roles.SnapshotOf(profA), roles.SnapshotOf(profB))

	chatID := uuid.New().String()
	promoGranted := false
	if res.EarnerID != nil && res.EarnModeOn && res.Tier == models.TierLowPopularity {
		earner := profA
		if *res.EarnerID == profB.UserID {
			earner = profB
		}
		promoGranted, err = s.Gate.Check(ctx, chatID, earner.UserID, earner.Region, promo.MetricsOf(earner))
		if err != nil {
			// The gate failing open would leak unlimited free chats; fall
			// back to the standard low-popularity window instead.
			log.Printf("ERROR: promotion gate check failed for chat %s: %v", chatID, err)
			promoGranted = false
		}
	}

	win := policy.ComputeFreeWindow(res, promoGranted, s.Cfg)

	session := &models.ChatSession{
		ChatID:       chatID,
		ParticipantA: pa,
		ParticipantB: pb,
		EarnerID:     res.EarnerID,
		PayerID:      res.PayerID,
		EarnerTier:   res.Tier,
		BillingMode:  win.BillingMode,
		State:        policy.InitialState(win.BillingMode),
		FreeQuotaA:   win.QuotaPerParticipant,
		FreeQuotaB:   win.QuotaPerParticipant,
	}

	created, isNew, err := s.Storage.CreateSession(session)
	if err != nil {
		if promoGranted {
			s.Gate.Abandon(ctx, chatID)
		}
		return nil, err
	}
	if !isNew && promoGranted {
		// The pair already had a session; give back the promo slot counted
		// for the chat that never came to exist.
		s.Gate.Abandon(ctx, chatID)
	}
	if isNew {
		log.Printf("INFO: session %s created for pair (%s, %s): mode=%s quota=%d",
			created.ChatID, pa, pb, created.BillingMode, created.FreeQuotaA)
	}
	return created, nil
}

// ProcessMessage applies one message to the chat funnel and returns its typed
// outcome. messageKey is the caller-supplied idempotency key: a replay of an
// already-processed key returns the stored outcome without touching counters
// or the wallet.
func (s *Service) ProcessMessage(ctx context.Context, chatID, senderID, messageKey string, wordCount int) (Result, error) {
	if messageKey == "" {
		return Result{}, ErrMissingMessageKey
	}

	if receipt, err := s.Storage.GetReceipt(chatID, senderID, messageKey); err != nil {
		return Result{}, err
	} else if receipt != nil {
		return resultOf(receipt), nil
	}

	session, err := s.Storage.GetSession(chatID)
	if err != nil {
		return Result{}, err
	}
	if session == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	if !session.IsParticipant(senderID) {
		return Result{}, fmt.Errorf("%w: %s in chat %s", ErrNotParticipant, senderID, chatID)
	}

	switch session.State {
	case models.StateFullyFree:
		return s.processFullyFree(chatID, senderID, messageKey, wordCount)
	case models.StateFree:
		return s.processFree(ctx, session, senderID, messageKey, wordCount)
	default:
		return s.processPaid(ctx, session, senderID, messageKey, wordCount)
	}
}

// processFullyFree handles promotional chats: always allowed, never billed.
func (s *Service) processFullyFree(chatID, senderID, messageKey string, wordCount int) (Result, error) {
	receipt := &models.MessageReceipt{
		ChatID:     chatID,
		SenderID:   senderID,
		MessageKey: messageKey,
		Allowed:    true,
		Billed:     false,
		WordCount:  wordCount,
	}
	if err := s.Storage.SaveReceipt(receipt); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return Result{Allowed: true}, nil
		}
		return Result{}, err
	}
	return Result{Allowed: true}, nil
}

// processFree runs the free-window path. The counter increment, the joint
// exhaustion re-check, and the receipt write all happen inside one per-chat
// locked transaction in storage.
func (s *Service) processFree(ctx context.Context, session *models.ChatSession, senderID, messageKey string, wordCount int) (Result, error) {
	out, err := s.Storage.ConsumeFreeMessage(ctx, session.ChatID, senderID, messageKey, wordCount)
	if errors.Is(err, storage.ErrDuplicateKey) {
		receipt, rerr := s.Storage.GetReceipt(session.ChatID, senderID, messageKey)
		if rerr != nil || receipt == nil {
			return Result{}, fmt.Errorf("replayed key %s lost its receipt: %v", messageKey, rerr)
		}
		return resultOf(receipt), nil
	}
	if err != nil {
		return Result{}, err
	}

	if out.Consumed {
		s.notifyAfterFreeSend(session, senderID, out)
		return Result{Allowed: true}, nil
	}

	if out.AwaitingOtherParty {
		s.notify(models.QuotaEvent{
			UserID: senderID,
			ChatID: session.ChatID,
			Type:   models.EventFreeQuotaExhausted,
		})
		return Result{Allowed: false, Reason: ReasonAwaitingOtherParty}, nil
	}

	// The chat left the FREE state under the lock (or had already left it);
	// re-dispatch on the fresh state.
	session.State = out.State
	if out.State == models.StateFullyFree {
		return s.processFullyFree(session.ChatID, senderID, messageKey, wordCount)
	}
	return s.processPaid(ctx, session, senderID, messageKey, wordCount)
}

// processPaid runs the paid path: derive gross tokens from the word bucket,
// debit the payer with a bounded timeout, route the split, then record the
// receipt. Nothing is marked sent without a definitive billing outcome.
func (s *Service) processPaid(ctx context.Context, session *models.ChatSession, senderID, messageKey string, wordCount int) (Result, error) {
	if session.BillingMode == models.BillingPromotionalFree {
		// Promotional chats never reach the paid path.
		return Result{}, fmt.Errorf("%w: promotional chat %s in state %s", router.ErrInvalidBillingModeForRouting, session.ChatID, session.State)
	}

	if session.EarnerID == nil || session.PayerID == nil {
		// No one to credit or bill: the quota accounting was informational
		// only and messages keep flowing unbilled.
		return s.processFullyFree(session.ChatID, senderID, messageKey, wordCount)
	}

	gross := s.Cfg.GrossTokensFor(wordCount)

	dctx, cancel := context.WithTimeout(ctx, s.Cfg.WalletTimeout)
	defer cancel()
	debit, err := s.Wallet.Debit(dctx, *session.PayerID, gross, wallet.IdemKey(session.ChatID, messageKey))
	if err != nil {
		// Ambiguous wallet outcome: not billed, not sent.
		return Result{}, fmt.Errorf("wallet debit for chat %s: %w", session.ChatID, err)
	}
	if debit.InsufficientFunds {
		s.notify(models.QuotaEvent{
			UserID: *session.PayerID,
			ChatID: session.ChatID,
			Type:   models.EventDepositRequired,
		})
		return Result{Allowed: false, RequiresDeposit: true, Reason: ReasonInsufficientFunds}, nil
	}

	if _, err := s.Router.Route(ctx, session.ChatID, messageKey, gross, session.BillingMode, session.EarnerID); err != nil {
		return Result{}, err
	}

	receipt := &models.MessageReceipt{
		ChatID:      session.ChatID,
		SenderID:    senderID,
		MessageKey:  messageKey,
		Allowed:     true,
		Billed:      true,
		WordCount:   wordCount,
		GrossTokens: gross,
	}
	if err := s.Storage.SaveReceipt(receipt); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return Result{}, err
	}
	return Result{Allowed: true, Billed: true}, nil
}

func (s *Service) notifyAfterFreeSend(session *models.ChatSession, senderID string, out *storage.FreeConsumeOutcome) {
	if out.State == models.StatePaid {
		for _, userID := range []string{session.ParticipantA, session.ParticipantB} {
			s.notify(models.QuotaEvent{
				UserID: userID,
				ChatID: session.ChatID,
				Type:   models.EventChatPaywalled,
			})
		}
		return
	}
	if out.Remaining != models.QuotaUnlimited && out.Remaining <= s.Cfg.LowQuotaWarnRemaining {
		eventType := models.EventFreeQuotaLow
		if out.Remaining == 0 {
			eventType = models.EventFreeQuotaExhausted
		}
		s.notify(models.QuotaEvent{
			UserID:    senderID,
			ChatID:    session.ChatID,
			Type:      eventType,
			Remaining: out.Remaining,
		})
	}
}

func (s *Service) notify(ev models.QuotaEvent) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.PublishQuotaEvent(ev); err != nil {
		log.Printf("WARNING: failed to publish quota event %s for user %s: %v", ev.Type, ev.UserID, err)
	}
}

func resultOf(r *models.MessageReceipt) Result {
	return Result{Allowed: r.Allowed, Billed: r.Billed}
}
