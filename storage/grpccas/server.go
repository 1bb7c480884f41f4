package grpccas

import (
	"context"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/covenants/cidutil"
	"xdao.co/covenants/storage"
)

// Server exposes a storage.CAS as the Archive service. Bytes are checked
// against their CID in both directions.
type Server struct {
	UnimplementedArchiveServer
	CAS storage.CAS
}

func (s *Server) ready() error {
	if s == nil || s.CAS == nil {
		return status.Error(codes.FailedPrecondition, "archive not configured")
	}
	return nil
}

func (s *Server) Put(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	b := in.GetValue()
	id, err := s.CAS.Put(b)
	if err != nil {
		return nil, toStatus(err)
	}
	if !cidutil.Matches(id, b) {
		return nil, toStatus(storage.ErrCIDMismatch)
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	id, err := parseID(in.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := s.CAS.Get(id)
	if err != nil {
		return nil, toStatus(err)
	}
	if !cidutil.Matches(id, b) {
		return nil, toStatus(storage.ErrCIDMismatch)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	id, err := parseID(in.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}

func parseID(s string) (cid.Cid, error) {
	id, err := cidutil.Parse(s)
	if err != nil {
		return cid.Undef, toStatus(storage.ErrInvalidCID)
	}
	return id, nil
}
