package analysis

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Reconciler runs the sweep and prune on a schedule, independent of request
// traffic. The same operations are reachable through the operator endpoints.
type Reconciler struct {
	Service       *Service
	SweepSchedule string
	PruneSchedule string
	SweepLimit    int

	cron *cron.Cron
}

func (r *Reconciler) Start() error {
	r.cron = cron.New()

	if _, err := r.cron.AddFunc(r.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		res, err := r.Service.SweepPending(ctx, r.SweepLimit)
		if err != nil {
			log.WithError(err).Error("scheduled sweep failed")
			return
		}
		if res.Queued > 0 || res.Failed > 0 {
			log.WithFields(log.Fields{"queued": res.Queued, "failed": res.Failed}).Info("scheduled sweep finished")
		}
	}); err != nil {
		return err
	}

	if _, err := r.cron.AddFunc(r.PruneSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		res, err := r.Service.Prune(ctx)
		if err != nil {
			log.WithError(err).Error("queue cleanup failed")
			return
		}
		log.WithFields(log.Fields{"completed": res.Completed, "failed": res.Failed}).Info("queue cleanup completed")
	}); err != nil {
		return err
	}

	r.cron.Start()
	return nil
}

// Stop waits for any in-flight scheduled run to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}
