package payment

import (
	"context"
)

// AddItem appends an item to a NEW payment and grows its amount.
func (m *Manager) AddItem(ctx context.Context, paymentID int64, in ItemInput) (*Item, error) {
	resolved, err := m.resolveItems([]ItemInput{in}, true)
	if err != nil {
		return nil, err
	}

	var created *Item
	err = m.repo.WithinTx(ctx, func(repo RepositoryAPI) error {
		p, err := m.openPayment(ctx, repo, paymentID)
		if err != nil {
			return err
		}
		it := newItem(p.ID, resolved[0])
		if err := repo.CreateItem(ctx, it); err != nil {
			return err
		}
		p.Amount = p.Amount.Add(it.TotalPrice)
		if err := repo.UpdatePayment(ctx, p); err != nil {
			return err
		}
		created = it
		return nil
	})
	if err != nil {
		return nil, m.resolveWriteError(ctx, paymentID, err)
	}
	return created, nil
}

// UpdateItem changes quantity, price, description or options of an item on a
// NEW payment; the amount moves by the difference in item total.
func (m *Manager) UpdateItem(ctx context.Context, paymentID, itemID int64, upd ItemUpdate) (*Item, error) {
	var updated *Item
	err := m.repo.WithinTx(ctx, func(repo RepositoryAPI) error {
		p, err := m.openPayment(ctx, repo, paymentID)
		if err != nil {
			return err
		}
		it, err := repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if it.PaymentID != p.ID {
			return ErrItemNotFound
		}

		in := ItemInput{Kind: it.Kind, Quantity: it.Quantity, UnitPrice: it.UnitPrice, Description: it.Description}
		if upd.Quantity != nil {
			in.Quantity = *upd.Quantity
		}
		if upd.UnitPrice != nil {
			in.UnitPrice = *upd.UnitPrice
		}
		if upd.Description != nil {
			in.Description = *upd.Description
		}
		if err := in.Validate(); err != nil {
			return err
		}

		previous := it.TotalPrice
		it.Quantity = in.Quantity
		it.UnitPrice = in.UnitPrice
		it.Description = in.Description
		if upd.Options != nil {
			if kind, ok := m.items.Find(it.Kind); ok {
				it.Options = filterOptions(upd.Options, kind.ExtraFillableFields())
			}
		}
		if it.Description == "" {
			if kind, ok := m.items.Find(it.Kind); ok {
				it.Description = kind.DefaultMessage()
			}
		}
		it.TotalPrice = it.ComputeTotal()
		if err := repo.UpdateItem(ctx, it); err != nil {
			return err
		}

		p.Amount = p.Amount.Add(it.TotalPrice.Sub(previous))
		if err := repo.UpdatePayment(ctx, p); err != nil {
			return err
		}
		updated = it
		return nil
	})
	if err != nil {
		return nil, m.resolveWriteError(ctx, paymentID, err)
	}
	return updated, nil
}

// DeleteItem removes an item from a NEW payment and shrinks its amount.
func (m *Manager) DeleteItem(ctx context.Context, paymentID, itemID int64) error {
	err := m.repo.WithinTx(ctx, func(repo RepositoryAPI) error {
		p, err := m.openPayment(ctx, repo, paymentID)
		if err != nil {
			return err
		}
		it, err := repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if it.PaymentID != p.ID {
			return ErrItemNotFound
		}
		if err := repo.DeleteItem(ctx, it.ID); err != nil {
			return err
		}
		p.Amount = p.Amount.Sub(it.TotalPrice)
		return repo.UpdatePayment(ctx, p)
	})
	if err != nil {
		return m.resolveWriteError(ctx, paymentID, err)
	}
	return nil
}

func (m *Manager) openPayment(ctx context.Context, repo RepositoryAPI, paymentID int64) (*Payment, error) {
	p, err := repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.IsOpen() {
		return nil, ErrPaymentNotOpen
	}
	return p, nil
}
