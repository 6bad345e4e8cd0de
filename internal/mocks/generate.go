// Package mocks provides gomock implementations of the service interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	proc := mocks.NewMockProcess(ctrl)
//	proc.EXPECT().Poll().Return(true, 0)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=service_mock.go github.com/lmevald/lmevald/internal/service Launcher,Process
