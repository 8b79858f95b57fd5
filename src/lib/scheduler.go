package lib

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const SweepJobName = "expiry-sweep"

var scheduler gocron.Scheduler

func NewScheduler(s gocron.Scheduler) {
	scheduler = s
}

// GetScheduler returns the process scheduler. Jobs are coordinated through Redis when it is configured.
func GetScheduler() (gocron.Scheduler, error) {
	if scheduler != nil {
		return scheduler, nil
	}
	opts := []gocron.SchedulerOption{gocron.WithLocation(time.UTC)}
	if rdb := GetRedisClient(); rdb != nil {
		opts = append(opts, gocron.WithDistributedLocker(NewRedisLocker(rdb, 5*time.Minute)))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		log.Printf("Error initializing Scheduler: %s\n", err.Error())
		return nil, err
	}
	scheduler = sched
	return sched, nil
}

// CreateSweepJob runs sweep every interval, starting immediately. A run that outlasts the
// interval delays the next one instead of overlapping it.
func CreateSweepJob(sched gocron.Scheduler, interval time.Duration, sweep func(ctx context.Context) (int, error)) (*string, error) {
	j, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			expired, err := sweep(ctx)
			if err != nil {
				log.Printf("Error sweeping expired orders: %s\n", err.Error())
				return
			}
			if expired > 0 {
				log.Printf("Expired %d orders\n", expired)
			}
		}),
		gocron.WithName(SweepJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, err
	}
	id := j.ID().String()
	log.Printf("Job: %s %s\n", id, j.Name())
	return &id, nil
}
