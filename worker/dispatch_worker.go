package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"chatagent-backend/config"
	"chatagent-backend/models"
	"chatagent-backend/services"
)

// replyChannel is the worker-side view of a platform channel: send a reply
// and give an engagement signal while the assistant is working.
type replyChannel interface {
	Platform() string
	SendText(ctx context.Context, chatID, text string) error
}

// DispatchWorker drains the dispatch_jobs queue: LISTEN/NOTIFY for instant
// wakeups, a polling ticker as fallback, and FOR UPDATE SKIP LOCKED claims so
// multiple instances never double-process a job.
type DispatchWorker struct {
	db            *gorm.DB
	cfg           *config.Config
	conversations *services.ConversationService
	dispatcher    *services.Dispatcher
	telegram      *services.TelegramFactory
	breaker       *services.CircuitBreaker
	shutdown      chan struct{}
	wg            sync.WaitGroup
}

func NewDispatchWorker(db *gorm.DB, cfg *config.Config, conversations *services.ConversationService,
	dispatcher *services.Dispatcher, telegram *services.TelegramFactory) *DispatchWorker {
	return &DispatchWorker{
		db:            db,
		cfg:           cfg,
		conversations: conversations,
		dispatcher:    dispatcher,
		telegram:      telegram,
		breaker:       services.NewCircuitBreaker("assistant", 5, 60*time.Second),
		shutdown:      make(chan struct{}),
	}
}

// Start runs the worker loop until Stop is called.
func (w *DispatchWorker) Start() {
	log.Println("🤖 Dispatch worker started")

	w.wg.Add(1)
	go w.listenForJobs()

	// Fallback polling in case notifications are missed
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			log.Println("🛑 Dispatch worker shutting down...")
			w.wg.Wait()
			log.Println("✅ Dispatch worker stopped")
			return
		case <-ticker.C:
			w.processJobs()
		}
	}
}

// Stop signals the worker to shut down gracefully.
func (w *DispatchWorker) Stop() {
	close(w.shutdown)
}

// listenForJobs subscribes to the Postgres NOTIFY channel fired by the
// dispatch_jobs insert trigger. Cloud databases drop LISTEN connections
// aggressively; the polling ticker covers the gaps.
func (w *DispatchWorker) listenForJobs() {
	defer w.wg.Done()

	eventCallback := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Println("✅ [LISTEN] Connected - instant notifications enabled")
		case pq.ListenerEventDisconnected:
			log.Println("ℹ️  [LISTEN] Disconnected (polling fallback active)")
		case pq.ListenerEventReconnected:
			log.Println("✅ [LISTEN] Reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			if err != nil && !strings.Contains(err.Error(), "connection") {
				log.Printf("⚠️  [LISTEN] Error: %v (polling fallback active)", err)
			}
		}
	}

	listener := pq.NewListener(w.cfg.Database.DSN(), 10*time.Second, time.Minute, eventCallback)
	if err := listener.Listen("dispatch_jobs_channel"); err != nil {
		log.Printf("⚠️  Failed to listen on dispatch_jobs_channel: %v (polling only)", err)
		return
	}
	defer listener.Close()

	log.Println("👂 Listening for dispatch job notifications...")

	keepalive := time.NewTicker(60 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case notification := <-listener.Notify:
			if notification != nil {
				w.processJobs()
			}
		case <-keepalive.C:
			go func() {
				_ = listener.Ping()
			}()
		}
	}
}

// processJobs claims and runs pending jobs until the queue is empty.
func (w *DispatchWorker) processJobs() {
	for {
		var job models.DispatchJob
		tx := w.db.Begin()

		err := tx.Raw(`
			SELECT * FROM dispatch_jobs
			WHERE status = 'pending'
			AND (next_run_at IS NULL OR next_run_at <= NOW())
			ORDER BY priority ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		`).Scan(&job).Error

		if err != nil || job.ID == 0 {
			tx.Rollback()
			return
		}

		tx.Model(&job).Updates(map[string]interface{}{
			"status":     models.JobProcessing,
			"attempts":   job.Attempts + 1,
			"updated_at": time.Now(),
		})
		tx.Commit()
		job.Attempts++

		w.processJob(&job)
	}
}

// processJob runs one assistant dispatch end to end. Every failure path ends
// with some reply reaching the user.
func (w *DispatchWorker) processJob(job *models.DispatchJob) {
	log.Printf("⚙️  Processing job #%d (message: %s, attempt: %d)", job.ID, job.MessageID, job.Attempts)

	start := time.Now()
	attempt := models.DispatchAttempt{
		JobID:     job.ID,
		StartedAt: start,
		Status:    "processing",
	}
	w.db.Create(&attempt)

	var app models.App
	if err := w.db.Where("app_id = ?", job.AppID).First(&app).Error; err != nil {
		w.permanentFailJob(job, &attempt, fmt.Sprintf("app %s not found: %v", job.AppID, err))
		return
	}

	channel, err := w.channelFor(&app)
	if err != nil {
		w.failJob(job, &attempt, nil, "", fmt.Sprintf("failed to build channel: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Dispatch.Budget+10*time.Second)
	defer cancel()

	w.signalEngagement(ctx, channel, job)

	content := job.Content
	if job.MediaURL != "" {
		content = fmt.Sprintf("%s\n\nAttachment: %s", content, job.MediaURL)
	}

	var result *services.DispatchResult
	cbErr := w.breaker.Call(func() error {
		var dispatchErr error
		result, dispatchErr = w.dispatcher.Dispatch(ctx, &app, job.ChatID, content)
		return dispatchErr
	})

	sessionID := ""
	if result != nil {
		sessionID = result.SessionID
	}

	if cbErr != nil {
		w.handleDispatchError(job, &attempt, channel, &app, sessionID, cbErr)
		return
	}

	if err := channel.SendText(ctx, job.ChatID, result.Reply); err != nil {
		w.failJob(job, &attempt, nil, "", fmt.Sprintf("failed to send reply: %v", err))
		return
	}

	if _, err := w.conversations.AppendMessage(services.AppendInput{
		App:         &app,
		ChatID:      job.ChatID,
		Direction:   models.DirectionOutbound,
		Role:        models.RoleAssistant,
		Content:     result.Reply,
		MessageType: models.TypeText,
		SessionID:   sessionID,
	}); err != nil {
		log.Printf("⚠️  Failed to record assistant reply for job #%d: %v", job.ID, err)
	}

	now := time.Now()
	w.db.Model(job).Updates(map[string]interface{}{
		"status":     models.JobDone,
		"error_msg":  "",
		"updated_at": now,
	})
	w.db.Model(&attempt).Updates(map[string]interface{}{
		"status":   "ok",
		"ended_at": now,
	})

	log.Printf("✅ Job #%d completed in %dms", job.ID, time.Since(start).Milliseconds())
}

// channelFor builds the platform channel for the job's tenant.
func (w *DispatchWorker) channelFor(app *models.App) (replyChannel, error) {
	switch app.Platform {
	case models.PlatformWhatsApp:
		return services.NewWhatsAppChannel(app, w.cfg.WhatsApp.APIVersion), nil
	case models.PlatformTelegram:
		return w.telegram.Channel(app)
	default:
		return nil, fmt.Errorf("unknown platform %q", app.Platform)
	}
}

// signalEngagement shows the sender the bot is alive: blue ticks on WhatsApp,
// the typing action on Telegram. Best effort.
func (w *DispatchWorker) signalEngagement(ctx context.Context, channel replyChannel, job *models.DispatchJob) {
	switch c := channel.(type) {
	case *services.WhatsAppChannel:
		if err := c.MarkRead(ctx, job.MessageID); err != nil {
			log.Printf("⚠️  Failed to mark message as read: %v", err)
		}
	case *services.TelegramChannel:
		if err := c.Typing(ctx, job.ChatID); err != nil {
			log.Printf("⚠️  Failed to send typing action: %v", err)
		}
	}
}

// handleDispatchError routes an assistant failure: timeouts and exhausted or
// permanent failures get the fallback reply; retryable failures requeue.
func (w *DispatchWorker) handleDispatchError(job *models.DispatchJob, attempt *models.DispatchAttempt,
	channel replyChannel, app *models.App, sessionID string, err error) {

	if errors.Is(err, services.ErrDispatchTimeout) {
		log.Printf("⏱️  Job #%d timed out waiting for the assistant", job.ID)
		w.sendFallback(channel, app, job, sessionID)

		now := time.Now()
		w.db.Model(job).Updates(map[string]interface{}{
			"status":     models.JobTimeout,
			"error_msg":  err.Error(),
			"updated_at": now,
		})
		w.db.Model(attempt).Updates(map[string]interface{}{
			"status":    "timeout",
			"error_msg": err.Error(),
			"ended_at":  now,
		})
		return
	}

	aiErr := services.ClassifyAssistantError(err)
	if aiErr.IsAuthError() || aiErr.IsQuotaError() || !aiErr.IsRetryable() {
		w.sendFallback(channel, app, job, sessionID)
		w.permanentFailJob(job, attempt, aiErr.Error())
		return
	}

	w.failJob(job, attempt, channel, sessionID, aiErr.Error())

	// Exhausted retries also owe the user a reply.
	if job.Attempts >= w.cfg.Dispatch.MaxAttempts {
		w.sendFallback(channel, app, job, sessionID)
	}
}

// sendFallback delivers the apology text and records it as an outbound
// message so the conversation log reflects what the user saw.
func (w *DispatchWorker) sendFallback(channel replyChannel, app *models.App, job *models.DispatchJob, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if channel == nil {
		return
	}
	if err := channel.SendText(ctx, job.ChatID, services.FallbackDispatchFail); err != nil {
		log.Printf("⚠️  Failed to send fallback for job #%d: %v", job.ID, err)
		return
	}
	if _, err := w.conversations.AppendMessage(services.AppendInput{
		App:         app,
		ChatID:      job.ChatID,
		Direction:   models.DirectionOutbound,
		Role:        models.RoleAssistant,
		Content:     services.FallbackDispatchFail,
		MessageType: models.TypeText,
		SessionID:   sessionID,
	}); err != nil {
		log.Printf("⚠️  Failed to record fallback for job #%d: %v", job.ID, err)
	}
}

// permanentFailJob marks a job failed with no retry.
func (w *DispatchWorker) permanentFailJob(job *models.DispatchJob, attempt *models.DispatchAttempt, errMsg string) {
	log.Printf("🚫 Job #%d permanently failed: %s", job.ID, errMsg)

	now := time.Now()
	w.db.Model(attempt).Updates(map[string]interface{}{
		"status":    "error",
		"error_msg": errMsg,
		"ended_at":  now,
	})
	w.db.Model(job).Updates(map[string]interface{}{
		"status":     models.JobFailed,
		"error_msg":  errMsg,
		"updated_at": now,
	})
}

// failJob records the failure and requeues with a delay while attempts
// remain.
func (w *DispatchWorker) failJob(job *models.DispatchJob, attempt *models.DispatchAttempt,
	channel replyChannel, sessionID string, errMsg string) {
	log.Printf("❌ Job #%d failed: %s", job.ID, errMsg)

	now := time.Now()
	w.db.Model(attempt).Updates(map[string]interface{}{
		"status":    "error",
		"error_msg": errMsg,
		"ended_at":  now,
	})

	updates := map[string]interface{}{
		"error_msg":  errMsg,
		"updated_at": now,
	}

	if job.Attempts < w.cfg.Dispatch.MaxAttempts {
		nextRun := now.Add(30 * time.Second)
		updates["status"] = models.JobPending
		updates["next_run_at"] = nextRun
		log.Printf("🔄 Job #%d will retry at %s (attempt %d/%d)",
			job.ID, nextRun.Format(time.RFC3339), job.Attempts, w.cfg.Dispatch.MaxAttempts)
	} else {
		updates["status"] = models.JobFailed
		log.Printf("💀 Job #%d permanently failed after %d attempts", job.ID, job.Attempts)
	}

	w.db.Model(job).Updates(updates)
}
