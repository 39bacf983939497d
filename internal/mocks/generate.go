package mocks

//go:generate mockgen -destination=job.go -package=mocks -mock_names=Repository=MockJobRepository github.com/alanyang/job-dispatch/internal/port/job Repository
//go:generate mockgen -destination=agent.go -package=mocks -mock_names=Repository=MockAgentRepository github.com/alanyang/job-dispatch/internal/port/agent Repository,CandidateReader,StatsWriter
//go:generate mockgen -destination=distribution.go -package=mocks -mock_names=Repository=MockDistributionRepository github.com/alanyang/job-dispatch/internal/port/distribution Repository,PerformanceRepository,LogRepository
//go:generate mockgen -destination=agentclient.go -package=mocks -mock_names=Client=MockAgentClient github.com/alanyang/job-dispatch/internal/port/agentclient Client
//go:generate mockgen -destination=eventbus.go -package=mocks github.com/alanyang/job-dispatch/internal/port/eventbus EventBus,Subscription
//go:generate mockgen -destination=locker.go -package=mocks github.com/alanyang/job-dispatch/internal/port/locker AdvisoryLocker
//go:generate mockgen -destination=queue.go -package=mocks github.com/alanyang/job-dispatch/internal/port/queue Queue
//go:generate mockgen -destination=cache.go -package=mocks github.com/alanyang/job-dispatch/internal/port/cache Cache
