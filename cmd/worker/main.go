package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sportsreg_app/internal/config"
	"sportsreg_app/internal/gateway"
	"sportsreg_app/internal/models"
	"sportsreg_app/internal/notify"
	"sportsreg_app/internal/repository"
	"sportsreg_app/internal/services"
	"sportsreg_app/internal/tasks"
)

const pollInterval = 5 * time.Minute

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}

	var notifier notify.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewEmailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	} else {
		notifier = &notify.LogNotifier{Log: log}
	}

	var gw gateway.Gateway
	if cfg.MidtransServerKey != "" {
		gw = gateway.NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransClientKey, cfg.MidtransIsProduction)
	} else {
		log.Warn("no gateway credentials, sweep will fail stale payments without a status check")
	}

	tasks.DefineTasks()
	deps := tasks.Deps{
		Store:    repository.NewStore(db),
		Notifier: notifier,
		Gateway:  gw,
		Log:      log,
	}

	log.Info("worker started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("shutting down worker")
		cancel()
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// One pass on startup, then on every tick.
	processScheduledTasks(ctx, db, deps, log)

	for {
		select {
		case <-ticker.C:
			processScheduledTasks(ctx, db, deps, log)
		case <-ctx.Done():
			return
		}
	}
}

func processScheduledTasks(ctx context.Context, db *gorm.DB, deps tasks.Deps, log *logrus.Logger) {
	var pendingTasks []models.ScheduledTask
	now := time.Now()
	if err := db.Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).Find(&pendingTasks).Error; err != nil {
		log.WithError(err).Error("fetching pending tasks failed")
		return
	}

	if len(pendingTasks) == 0 {
		return
	}
	log.WithField("count", len(pendingTasks)).Info("found pending tasks")

	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			return
		}
		executeTask(ctx, db, deps, task, log)
	}
}

func executeTask(ctx context.Context, db *gorm.DB, deps tasks.Deps, task models.ScheduledTask, log *logrus.Logger) {
	entry := log.WithFields(logrus.Fields{"task": task.TaskName, "id": task.ID})

	handler, found := tasks.GetHandler(task.TaskName)
	if !found {
		entry.Error("task handler not found, marking as failure")
		now := time.Now()
		db.Model(&task).Updates(map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
		db.Create(&models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           now,
			Status:          "handler_not_found",
			AttemptNumber:   1,
			Arguments:       task.Arguments,
			Result:          map[string]interface{}{"error": "handler not found"},
		})
		return
	}

	startTime := time.Now()
	result, err := handler(ctx, deps, task)
	runtimeMs := int(time.Since(startTime).Milliseconds())

	status := "success"
	resultData := result
	if err != nil {
		status = "failure"
		resultData = map[string]interface{}{"error": err.Error()}
		entry.WithError(err).Error("task failed")
	} else {
		entry.WithField("runtime_ms", runtimeMs).Info("task completed")
	}

	db.Create(&models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           startTime,
		RuntimeMs:       runtimeMs,
		Status:          status,
		AttemptNumber:   1,
		Arguments:       task.Arguments,
		Result:          resultData,
	})

	taskUpdates := map[string]interface{}{
		"last_run": &startTime,
	}
	if status != "success" {
		taskUpdates["status"] = models.ScheduledTaskStatusFailure
	} else {
		switch task.TaskType {
		case models.ScheduledTaskTypeOneTime:
			taskUpdates["status"] = models.ScheduledTaskStatusDone
		case models.ScheduledTaskTypeRecurring:
			nextDue := task.NextDue()
			// Only reschedule forward, otherwise the task would run again on
			// the very next tick.
			if nextDue.After(task.Due) {
				taskUpdates["status"] = models.ScheduledTaskStatusActive
				taskUpdates["due"] = nextDue
			} else {
				taskUpdates["status"] = models.ScheduledTaskStatusDone
			}
		}
	}
	db.Model(&task).Updates(taskUpdates)
}
