// Package mocks provides gomock implementations of the healwright ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRepository(ctrl)
//	repo.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/healwright/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/target/healwright/internal/core ReaperRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=test_run_repository_mock.go github.com/target/healwright/internal/core TestRunRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=finding_repository_mock.go github.com/target/healwright/internal/core FindingRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=project_repository_mock.go github.com/target/healwright/internal/core ProjectRepository

// Outbound adapters.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=source_control_mock.go github.com/target/healwright/internal/core SourceControl
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=publish_locker_mock.go github.com/target/healwright/internal/core PublishLocker
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=test_runner_mock.go github.com/target/healwright/internal/core TestRunner
