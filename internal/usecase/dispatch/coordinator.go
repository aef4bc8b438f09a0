package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
)

const (
	defaultSendTimeout  = 10 * time.Second
	defaultStoreTimeout = 5 * time.Second
	defaultClaimTTL     = 15 * time.Minute
)

// Options задаёт таймауты координатора.
type Options struct {
	SendTimeout  time.Duration
	StoreTimeout time.Duration
	ClaimTTL     time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendTimeout <= 0 {
		o.SendTimeout = defaultSendTimeout
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = defaultStoreTimeout
	}
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = defaultClaimTTL
	}
	return o
}

// Coordinator рассылает одно срабатывание по всем разрешённым каналам
// и отмечает его отправленным независимо от исхода каналов.
type Coordinator struct {
	store    domain.ReminderStore
	users    domain.UserDirectory
	senders  map[domain.Channel]domain.ChannelSender
	clock    domain.Clock
	claimer  domain.OccurrenceClaimer
	reporter domain.ErrorReporter
	opts     Options
	log      zerolog.Logger
}

// NewCoordinator создаёт координатор. Каналы без отправителя пропускаются.
func NewCoordinator(store domain.ReminderStore, users domain.UserDirectory, senders []domain.ChannelSender, clock domain.Clock, logger zerolog.Logger, opts Options) *Coordinator {
	bySenderChannel := make(map[domain.Channel]domain.ChannelSender, len(senders))
	for _, s := range senders {
		if s == nil {
			continue
		}
		bySenderChannel[s.Channel()] = s
	}
	return &Coordinator{
		store:   store,
		users:   users,
		senders: bySenderChannel,
		clock:   clock,
		opts:    opts.withDefaults(),
		log:     logger.With().Str("component", "dispatch").Logger(),
	}
}

// SetClaimer включает захват срабатывания перед отправкой.
func (c *Coordinator) SetClaimer(claimer domain.OccurrenceClaimer) {
	c.claimer = claimer
}

// SetReporter задаёт получателя ошибок полностью неудачных рассылок.
func (c *Coordinator) SetReporter(reporter domain.ErrorReporter) {
	c.reporter = reporter
}

// Dispatch рассылает срабатывание. Ошибки не выходят за пределы Outcome.
func (c *Coordinator) Dispatch(ctx context.Context, reminder domain.Reminder, occ domain.Occurrence) Outcome {
	out := Outcome{
		ReminderID:    reminder.ID,
		OccurrenceID:  occ.ID,
		ScheduledTime: occ.ScheduledTime,
		Channels:      make(map[domain.Channel]ChannelResult),
	}
	logger := c.log.With().
		Str("reminder", reminder.ID).
		Str("occurrence", occ.ID.String()).
		Str("user", reminder.OwnerID).
		Logger()

	if c.claimer != nil {
		claimed, err := c.claim(ctx, occ)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("dispatch: захват не удался, продолжаем без него")
		case !claimed:
			out.ClaimLost = true
			c.finish(logger, &out)
			return out
		default:
			out.Claimed = true
		}
	}

	user, err := c.lookupUser(ctx, reminder.OwnerID)
	if err != nil {
		out.Err = fmt.Errorf("получение пользователя: %w", err)
		c.release(ctx, logger, &out)
		c.finish(logger, &out)
		return out
	}

	payload := BuildPayload(reminder, occ)
	attempts := c.plan(reminder, user, &out)
	c.fanOut(ctx, user, payload, attempts, &out)

	marked, err := c.mark(ctx, reminder.ID, occ)
	switch {
	case err != nil:
		out.Err = fmt.Errorf("отметка срабатывания: %w", err)
		c.release(ctx, logger, &out)
	case !marked:
		out.AlreadyNotified = true
	default:
		out.Marked = true
	}

	if len(attempts) > 0 && len(out.Delivered()) == 0 && c.reporter != nil {
		c.reporter.Report(errors.New("all notification channels failed"), map[string]string{
			"reminder":   reminder.ID,
			"occurrence": occ.ID.String(),
			"user":       reminder.OwnerID,
		})
	}
	c.finish(logger, &out)
	return out
}

func (c *Coordinator) claim(ctx context.Context, occ domain.Occurrence) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
	defer cancel()
	return c.claimer.Claim(claimCtx, occ.ID, c.opts.ClaimTTL)
}

func (c *Coordinator) release(ctx context.Context, logger zerolog.Logger, out *Outcome) {
	if !out.Claimed {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.StoreTimeout)
	defer cancel()
	if err := c.claimer.Release(releaseCtx, out.OccurrenceID); err != nil {
		logger.Warn().Err(err).Msg("dispatch: не удалось снять захват")
		return
	}
	out.Claimed = false
}

func (c *Coordinator) lookupUser(ctx context.Context, userID string) (domain.User, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
	defer cancel()
	return c.users.GetUser(lookupCtx, userID)
}

func (c *Coordinator) mark(ctx context.Context, reminderID string, occ domain.Occurrence) (bool, error) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.StoreTimeout)
	defer cancel()
	return c.store.MarkNotified(markCtx, reminderID, occ.ScheduledTime, c.clock.Now().UTC())
}

// plan выбирает каналы для отправки и записывает пропущенные в out.
func (c *Coordinator) plan(reminder domain.Reminder, user domain.User, out *Outcome) []domain.ChannelSender {
	var attempts []domain.ChannelSender
	for _, ch := range reminder.ChannelSettings {
		if _, seen := out.Channels[ch]; seen {
			continue
		}
		sender, ok := c.senders[ch]
		switch {
		case !ch.Valid() || !ok:
			out.Channels[ch] = skipped("no sender configured")
		case !user.Preferences.Enabled(ch):
			out.Channels[ch] = skipped("disabled by user preferences")
		case user.Contact.For(ch) == "":
			out.Channels[ch] = skipped(domain.ErrNoContact.Error())
		default:
			out.Channels[ch] = ChannelResult{Status: StatusPending}
			attempts = append(attempts, sender)
		}
	}
	return attempts
}

// fanOut запускает отправки параллельно и ждёт, пока каждая завершится или истечёт её таймаут.
func (c *Coordinator) fanOut(ctx context.Context, user domain.User, payload domain.NotificationPayload, attempts []domain.ChannelSender, out *Outcome) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, sender := range attempts {
		wg.Add(1)
		go func(sender domain.ChannelSender) {
			defer wg.Done()
			res := c.send(ctx, sender, user, payload)
			metrics.ObserveChannelSend(string(sender.Channel()), string(res.Status), res.Duration)
			mu.Lock()
			out.Channels[sender.Channel()] = res
			mu.Unlock()
		}(sender)
	}
	wg.Wait()
}

func (c *Coordinator) send(ctx context.Context, sender domain.ChannelSender, user domain.User, payload domain.NotificationPayload) ChannelResult {
	sendCtx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- sender.Send(sendCtx, user, payload)
	}()

	var err error
	select {
	case err = <-done:
	case <-sendCtx.Done():
		err = fmt.Errorf("timeout: %w", sendCtx.Err())
	}
	res := ChannelResult{Status: StatusSuccess, Duration: time.Since(start)}
	if err != nil {
		sendErr := &domain.ChannelSendError{Channel: sender.Channel(), Reason: err.Error()}
		res.Status = StatusFailure
		res.Reason = sendErr.Reason
		c.log.Warn().
			Str("channel", string(sender.Channel())).
			Str("occurrence", payload.OccurrenceID.String()).
			Err(sendErr).
			Msg("dispatch: канал не доставил уведомление")
	}
	return res
}

func (c *Coordinator) finish(logger zerolog.Logger, out *Outcome) {
	label := out.Label()
	metrics.DispatchOutcomes.WithLabelValues(label).Inc()

	event := logger.Info()
	if out.Err != nil {
		event = logger.Error().Err(out.Err)
	}
	dict := zerolog.Dict()
	for ch, res := range out.Channels {
		dict = dict.Str(string(ch), string(res.Status))
	}
	event.
		Str("outcome", label).
		Dict("channels", dict).
		Bool("marked", out.Marked).
		Msg("dispatch: срабатывание обработано")
}
