package grpcoracle

import (
	"context"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/covenants/chain"
)

// Server exposes a chain.Oracle over gRPC.
//
// SpendStatus request:  {"txid": string, "vout": number}
// SpendStatus response: {"spent": bool, "spent_by": string, "height": number}
// Unspent response:     list of {"txid", "vout", "value", "height"}
type Server struct {
	UnimplementedOracleServer
	Oracle chain.Oracle
}

func (s *Server) Height(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt32Value, error) {
	if s == nil || s.Oracle == nil {
		return nil, status.Error(codes.FailedPrecondition, "oracle not configured")
	}
	h, err := s.Oracle.Height(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.UInt32(h), nil
}

func (s *Server) RawTx(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Oracle == nil {
		return nil, status.Error(codes.FailedPrecondition, "oracle not configured")
	}
	txid, err := chainhash.NewHashFromStr(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid txid")
	}
	raw, err := s.Oracle.RawTx(ctx, *txid)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(raw), nil
}

func (s *Server) SpendStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.Oracle == nil {
		return nil, status.Error(codes.FailedPrecondition, "oracle not configured")
	}
	op, err := outpointFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	st, err := s.Oracle.SpendStatus(ctx, op)
	if err != nil {
		return nil, toStatus(err)
	}
	fields := map[string]any{"spent": st.Spent, "height": float64(st.Height)}
	if st.Spent {
		fields["spent_by"] = st.SpentBy.String()
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) Unspent(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error) {
	if s == nil || s.Oracle == nil {
		return nil, status.Error(codes.FailedPrecondition, "oracle not configured")
	}
	utxos, err := s.Oracle.Unspent(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, 0, len(utxos))
	for _, u := range utxos {
		items = append(items, map[string]any{
			"txid":   u.OutPoint.Hash.String(),
			"vout":   float64(u.OutPoint.Index),
			"value":  float64(u.Value),
			"height": float64(u.Height),
		})
	}
	out, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) Broadcast(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Oracle == nil {
		return nil, status.Error(codes.FailedPrecondition, "oracle not configured")
	}
	txid, err := s.Oracle.Broadcast(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(txid.String()), nil
}

func outpointFromStruct(in *structpb.Struct) (wire.OutPoint, error) {
	fields := in.GetFields()
	txid, err := chainhash.NewHashFromStr(fields["txid"].GetStringValue())
	if err != nil {
		return wire.OutPoint{}, err
	}
	vout, err := uint32Field(fields["vout"])
	if err != nil {
		return wire.OutPoint{}, err
	}
	return wire.OutPoint{Hash: *txid, Index: vout}, nil
}

func uint32Field(v *structpb.Value) (uint32, error) {
	n := v.GetNumberValue()
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok || n < 0 || n > math.MaxUint32 || n != math.Trunc(n) {
		return 0, errBadNumber
	}
	return uint32(n), nil
}
