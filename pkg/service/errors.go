package service

import (
	"context"
	"errors"

	climdashrpc "climdash/pkg/api/climdashrpc/v1"
	"climdash/pkg/dataset"
	"climdash/pkg/resolver"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnavailableDetail 是 Unavailable 状态附带的详情载荷
type UnavailableDetail struct {
	Path     string             `json:"path"`
	Attempts []resolver.Attempt `json:"attempts"`
}

// toStatus 把领域错误映射为 gRPC 状态码
// BackendUnavailable 会附带每个后端的尝试结果，客户端可以据此还原 UnavailableError。
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, resolver.ErrBackendUnavailable):
		return unavailableStatus(err)
	case errors.Is(err, dataset.ErrInvalidRef),
		errors.Is(err, dataset.ErrInvalidPath),
		errors.Is(err, climdashrpc.ErrAmbiguousQuery):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func unavailableStatus(err error) error {
	st := status.New(codes.Unavailable, err.Error())

	var ue *resolver.UnavailableError
	if !errors.As(err, &ue) {
		return st.Err()
	}
	detail, encErr := climdashrpc.Encode(UnavailableDetail{Path: ue.Path, Attempts: ue.Attempts})
	if encErr != nil {
		return st.Err()
	}
	if withDetails, detErr := st.WithDetails(detail); detErr == nil {
		st = withDetails
	}
	return st.Err()
}
