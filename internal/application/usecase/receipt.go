package usecase

import (
	"sort"

	"github.com/dreschagin/cloudsink/internal/domain/entity"
	"github.com/dreschagin/cloudsink/internal/domain/service"
	"github.com/dreschagin/cloudsink/internal/domain/valueobject"
)

// Receipt сообщает судьбу каждого события батча.
// Delivered - индексы доставленных событий в порядке доставки,
// Failed - индексы недоставленных событий по возрастанию.
// Каждое событие батча попадает ровно в один из списков.
type Receipt struct {
	Delivered []int
	Failed    []int
}

// AllDelivered возвращает true, если недоставленных событий нет
func (r Receipt) AllDelivered() bool {
	return len(r.Failed) == 0
}

type eventGroup = service.Group[valueobject.DestinationKey, entity.LogEvent]

// deliverGroups отправляет группы по порядку и останавливается на первой ошибке.
// Группа, на которой произошла ошибка, и все последующие попадают в Failed.
func deliverGroups(groups []eventGroup, send func(eventGroup) error) (Receipt, error) {
	var receipt Receipt

	for i, group := range groups {
		if err := send(group); err != nil {
			for _, rest := range groups[i:] {
				receipt.Failed = append(receipt.Failed, rest.Indexes...)
			}
			sort.Ints(receipt.Failed)
			return receipt, err
		}
		receipt.Delivered = append(receipt.Delivered, group.Indexes...)
	}

	return receipt, nil
}

func failAll(n int) Receipt {
	failed := make([]int, n)
	for i := range failed {
		failed[i] = i
	}
	return Receipt{Failed: failed}
}
