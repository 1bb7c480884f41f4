package grpcoracle

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/faults"
)

var errBadNumber = errors.New("grpcoracle: expected a non-negative integer")

// toStatus maps oracle errors onto gRPC codes on the server side.
func toStatus(err error) error {
	switch {
	case chain.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, chain.ErrRejected) && faults.IsKind(err, faults.KindPrecondition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, chain.ErrRejected):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case faults.IsKind(err, faults.KindMalformed):
		return status.Error(codes.InvalidArgument, err.Error())
	case faults.IsKind(err, faults.KindPrecondition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case faults.IsKind(err, faults.KindTransport):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC is the client-side inverse of toStatus.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return faults.Wrap(faults.KindTransport, "ORACLE-GRPC-101", "rpc", err)
	}
	msg := st.Message()
	switch st.Code() {
	case codes.NotFound:
		return chain.NotFound(msg)
	case codes.FailedPrecondition:
		return faults.Wrap(faults.KindPrecondition, "CHAIN-UTXO-201", msg, chain.ErrRejected)
	case codes.Aborted:
		return chain.Rejected(msg)
	case codes.InvalidArgument:
		return faults.New(faults.KindMalformed, "ORACLE-GRPC-201", msg)
	case codes.Internal, codes.Unimplemented:
		return faults.Wrap(faults.KindInternal, "ORACLE-GRPC-301", "oracle server", err)
	default:
		return faults.Wrap(faults.KindTransport, "ORACLE-GRPC-101", "rpc", err)
	}
}
