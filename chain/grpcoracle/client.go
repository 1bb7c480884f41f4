// Package grpcoracle carries chain.Oracle over gRPC: a Server that wraps any
// oracle and a Client that implements chain.Oracle against it.
package grpcoracle

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/faults"
)

// Client implements chain.Oracle over an Oracle gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client OracleClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ chain.Oracle = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewOracleClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Height(ctx context.Context) (uint32, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Height(ctx, &emptypb.Empty{})
	if err != nil {
		return 0, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) RawTx(ctx context.Context, txid chainhash.Hash) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.RawTx(ctx, wrapperspb.String(txid.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) SpendStatus(ctx context.Context, outpoint wire.OutPoint) (chain.SpendStatus, error) {
	req, err := structpb.NewStruct(map[string]any{
		"txid": outpoint.Hash.String(),
		"vout": float64(outpoint.Index),
	})
	if err != nil {
		return chain.SpendStatus{}, faults.Wrap(faults.KindInternal, "ORACLE-GRPC-302", "encode request", err)
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.SpendStatus(ctx, req)
	if err != nil {
		return chain.SpendStatus{}, mapRPC(err)
	}
	fields := reply.GetFields()
	st := chain.SpendStatus{Spent: fields["spent"].GetBoolValue()}
	if h, ok := fields["height"]; ok {
		n, err := uint32Field(h)
		if err != nil {
			return chain.SpendStatus{}, malformed("height", err)
		}
		st.Height = n
	}
	if st.Spent {
		by, err := chainhash.NewHashFromStr(fields["spent_by"].GetStringValue())
		if err != nil {
			return chain.SpendStatus{}, malformed("spent_by", err)
		}
		st.SpentBy = *by
	}
	return st, nil
}

func (c *Client) Unspent(ctx context.Context, address string) ([]chain.Utxo, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Unspent(ctx, wrapperspb.String(address))
	if err != nil {
		return nil, mapRPC(err)
	}
	out := make([]chain.Utxo, 0, len(reply.GetValues()))
	for i, v := range reply.GetValues() {
		fields := v.GetStructValue().GetFields()
		txid, err := chainhash.NewHashFromStr(fields["txid"].GetStringValue())
		if err != nil {
			return nil, malformed(fmt.Sprintf("utxo %d txid", i), err)
		}
		vout, err := uint32Field(fields["vout"])
		if err != nil {
			return nil, malformed(fmt.Sprintf("utxo %d vout", i), err)
		}
		height, err := uint32Field(fields["height"])
		if err != nil {
			return nil, malformed(fmt.Sprintf("utxo %d height", i), err)
		}
		out = append(out, chain.Utxo{
			OutPoint: wire.OutPoint{Hash: *txid, Index: vout},
			Value:    int64(fields["value"].GetNumberValue()),
			Height:   height,
		})
	}
	return out, nil
}

func (c *Client) Broadcast(ctx context.Context, raw []byte) (chainhash.Hash, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Broadcast(ctx, wrapperspb.Bytes(raw))
	if err != nil {
		return chainhash.Hash{}, mapRPC(err)
	}
	txid, err := chainhash.NewHashFromStr(reply.GetValue())
	if err != nil {
		return chainhash.Hash{}, malformed("broadcast txid", err)
	}
	return *txid, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

func malformed(field string, err error) error {
	return faults.Wrap(faults.KindMalformed, "ORACLE-GRPC-202", "unexpected "+field+" in reply", err)
}
