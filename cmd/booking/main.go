/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"booking-settlement-go/internal/booking"
	"booking-settlement-go/internal/common"
	"booking-settlement-go/internal/config"
	"booking-settlement-go/internal/models"

	"go.uber.org/zap"
)

type bookingRequest struct {
	action    string
	bookingId string
	serviceId string
	clientId  string
	actorId   string
	date      time.Time
	endDate   *time.Time
	notes     string
	address   string
	reason    string
	role      string
	status    string
	limit     int
	offset    int
}

func parseAndValidateFlags() (*bookingRequest, error) {
	action := flag.String("action", "", "One of: create, accept, decline, complete, cancel, get, list")
	bookingId := flag.String("booking", "", "Booking id (accept, decline, complete, cancel, get)")
	serviceId := flag.String("service", "", "Service id (create)")
	clientId := flag.String("client", "", "Client user id (create)")
	actorId := flag.String("actor", "", "Acting user id")
	date := flag.String("date", "", "Booking start, RFC3339 (create)")
	endDate := flag.String("end", "", "Optional booking end, RFC3339 (create)")
	notes := flag.String("notes", "", "Optional notes (create)")
	address := flag.String("address", "", "Optional address (create)")
	reason := flag.String("reason", "", "Decline or cancellation reason")
	role := flag.String("role", "client", "List as 'client' or 'provider' (list)")
	status := flag.String("status", "", "Optional status filter (list)")
	limit := flag.Int("limit", 20, "Page size (list)")
	offset := flag.Int("offset", 0, "Page offset (list)")
	flag.Parse()

	req := &bookingRequest{
		action:    *action,
		bookingId: *bookingId,
		serviceId: *serviceId,
		clientId:  *clientId,
		actorId:   *actorId,
		notes:     *notes,
		address:   *address,
		reason:    *reason,
		role:      *role,
		status:    *status,
		limit:     *limit,
		offset:    *offset,
	}

	switch req.action {
	case "create":
		if req.serviceId == "" || req.clientId == "" || *date == "" {
			return nil, fmt.Errorf("create requires --service, --client and --date")
		}
		parsed, err := time.Parse(time.RFC3339, *date)
		if err != nil {
			return nil, fmt.Errorf("invalid --date %q: %w", *date, err)
		}
		req.date = parsed
		if *endDate != "" {
			parsedEnd, err := time.Parse(time.RFC3339, *endDate)
			if err != nil {
				return nil, fmt.Errorf("invalid --end %q: %w", *endDate, err)
			}
			req.endDate = &parsedEnd
		}
	case "accept", "complete":
		if req.bookingId == "" || req.actorId == "" {
			return nil, fmt.Errorf("%s requires --booking and --actor", req.action)
		}
	case "decline", "cancel":
		if req.bookingId == "" || req.actorId == "" {
			return nil, fmt.Errorf("%s requires --booking and --actor", req.action)
		}
	case "get":
		if req.bookingId == "" {
			return nil, fmt.Errorf("get requires --booking")
		}
	case "list":
		if req.actorId == "" {
			return nil, fmt.Errorf("list requires --actor")
		}
	default:
		return nil, fmt.Errorf("unknown --action %q", req.action)
	}

	return req, nil
}

func printBooking(b *models.Booking, isLast bool) {
	prefix := common.BoxPrefix(isLast)
	fmt.Printf("%s %s  %-10s  %s  total: %s\n",
		prefix, b.Id, b.Status, b.BookingDate.Format("2006-01-02 15:04"), b.TotalPrice.String())
}

func printBookingDetails(b *models.Booking) {
	fmt.Printf("\nBooking:     %s\n", b.Id)
	fmt.Printf("Service:     %s\n", b.ServiceId)
	fmt.Printf("Client:      %s\n", b.ClientId)
	fmt.Printf("Provider:    %s\n", b.ProviderId)
	fmt.Printf("Date:        %s\n", b.BookingDate.Format("2006-01-02 15:04"))
	fmt.Printf("Status:      %s\n", b.Status)
	fmt.Printf("Total price: %s\n", b.TotalPrice.String())
	if b.CancellationReason != "" {
		fmt.Printf("Cancelled:   by %s (%s)\n", b.CancelledBy, b.CancellationReason)
	}
	if b.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", b.CompletedAt.Format("2006-01-02 15:04"))
	}
}

func runAction(ctx context.Context, svc *booking.Service, req *bookingRequest) error {
	switch req.action {
	case "create":
		b, p, err := svc.Create(ctx, booking.CreateParams{
			ServiceId:   req.serviceId,
			ClientId:    req.clientId,
			BookingDate: req.date,
			EndDate:     req.endDate,
			Notes:       req.notes,
			Address:     req.address,
		})
		if err != nil {
			return err
		}
		printBookingDetails(b)
		fmt.Printf("Payment:     %s (%s, fee %s, net %s)\n",
			p.Id, p.Status, p.ServiceFee.String(), p.NetAmount.String())
		return nil
	case "accept":
		if err := svc.Accept(ctx, req.bookingId, req.actorId); err != nil {
			return err
		}
		fmt.Printf("Booking %s accepted\n", req.bookingId)
		return nil
	case "decline":
		if err := svc.Decline(ctx, req.bookingId, req.actorId, req.reason); err != nil {
			return err
		}
		fmt.Printf("Booking %s declined\n", req.bookingId)
		return nil
	case "complete":
		if err := svc.Complete(ctx, req.bookingId, req.actorId); err != nil {
			return err
		}
		fmt.Printf("Booking %s completed, payment moved to escrow\n", req.bookingId)
		return nil
	case "cancel":
		if err := svc.Cancel(ctx, req.bookingId, req.actorId, req.reason); err != nil {
			return err
		}
		fmt.Printf("Booking %s cancelled\n", req.bookingId)
		return nil
	case "get":
		b, err := svc.GetById(ctx, req.bookingId)
		if err != nil {
			return err
		}
		printBookingDetails(b)
		return nil
	case "list":
		bookings, err := svc.List(ctx, req.actorId, req.role, req.status, req.limit, req.offset)
		if err != nil {
			return err
		}
		fmt.Printf("\n%d booking(s) for %s as %s\n", len(bookings), req.actorId, req.role)
		for i := range bookings {
			printBooking(&bookings[i], i == len(bookings)-1)
		}
		return nil
	}
	return fmt.Errorf("unknown action %q", req.action)
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		flag.Usage()
		logger.Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader(fmt.Sprintf("Booking - %s", req.action), common.DefaultWidth)

	if err := runAction(ctx, services.BookingService, req); err != nil {
		logger.Fatal("Booking operation failed",
			zap.String("action", req.action),
			zap.Error(err))
	}

	common.PrintFooter("Done", common.DefaultWidth)
}
