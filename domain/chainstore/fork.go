package chainstore

import (
	"github.com/mwcnet/mwcd/domain/consensus/model"
)

// ForkPoint returns the common ancestor of a and b, along with the headers
// of a's and b's chains above it, each ordered from the lowest.
func (r *reader) ForkPoint(a, b *model.BlockHeader) (fork *model.BlockHeader,
	aBranch []*model.BlockHeader, bBranch []*model.BlockHeader, err error) {

	for a.Height > b.Height {
		aBranch = append(aBranch, a)
		a, err = r.GetPreviousHeader(a)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	for b.Height > a.Height {
		bBranch = append(bBranch, b)
		b, err = r.GetPreviousHeader(b)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	for !a.Hash().Equal(b.Hash()) {
		aBranch = append(aBranch, a)
		bBranch = append(bBranch, b)
		a, err = r.GetPreviousHeader(a)
		if err != nil {
			return nil, nil, nil, err
		}
		b, err = r.GetPreviousHeader(b)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	reverseHeaders(aBranch)
	reverseHeaders(bBranch)
	return a, aBranch, bBranch, nil
}

func reverseHeaders(headers []*model.BlockHeader) {
	for i, j := 0, len(headers)-1; i < j; i, j = i+1, j-1 {
		headers[i], headers[j] = headers[j], headers[i]
	}
}
